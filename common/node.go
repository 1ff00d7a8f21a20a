package commonconst

// 客户端与前端用户通信监听地址
const ClientToUserAddr = ":9999"

// levelDB 默认目录
const DefaultDBPath = "levelDB/db/path/fundme"

// redis 默认地址
const DefaultRedisAddr = "127.0.0.1:6379"
