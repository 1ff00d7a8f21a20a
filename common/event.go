package commonconst

// redis 存储合约事件的列表
const EventListKey = "fundme_events"

// 每个订阅者的事件缓冲
const EventSubBuffer = 20
