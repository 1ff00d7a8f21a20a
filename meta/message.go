package meta

type HttpResponse struct {
	Error string      `json:"error"` // 如果不为空代表错误信息
	Data  interface{} `json:"data"`
	Code  int         `json:"code"` // vue-element-admin的前端校验码，必须为20000
}

// 链上查询请求
type Query struct {
	Type       string   `json:"type"`
	Parameters []string `json:"parameters"`
}

// 用户提交的交易参数，金额以 ether 为单位
type PostTran struct {
	From     string            `json:"from"`
	To       string            `json:"to"`
	Contract string            `json:"contract"`
	Method   string            `json:"method"`
	Args     map[string]string `json:"args"`
	Value    string            `json:"value"`
	Type     int               `json:"type"`
}
