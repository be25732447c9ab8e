package storage

// BaseRepository 通用存储标记接口（对外导出）
// 具体的Repository接口显式定义方法签名并嵌入此接口
type BaseRepository interface{}
