package util

import "github.com/cloudflare/cfssl/log"

// 记录 json 编解码失败，返回原错误方便调用方继续处理
func DealJsonErr(funcName string, err error) error {
	if err != nil {
		log.Errorf("[%s] json marshal or unmarshal failed. err: %v", funcName, err)
	}
	return err
}
