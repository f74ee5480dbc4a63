package model

// AllModels 返回 sweeper 读写的所有模型
// 生产环境 schema 由 migrations/ 管理，这里仅用于开发环境和测试的 AutoMigrate
func AllModels() []interface{} {
	return []interface{}{
		&Address{},
		&Deposit{},
	}
}
