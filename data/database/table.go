package database

// Table 模型声明自己的表/集合名，SQL 与 Mongo 存储共用
type Table interface {
	GetTableName() string
}
