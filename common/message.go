package commonconst

// 前端校验码
const ResponseCode = 20000
