package api

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FlexString 兼容字符串和数字的 JSON 字段。
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = FlexString(n.String())
		return nil
	}
	return nil
}

// String 返回字符串值。
func (f FlexString) String() string {
	return string(f)
}

// CodeResponse 通用的 code/message 返回结构，实现业务错误检测。
// 嵌入到具体响应中即可让 httpclient 识别业务失败。
type CodeResponse struct {
	CodeValue FlexString `json:"code,omitempty"`
	Msg       string     `json:"message,omitempty"`
}

// IsSuccess 判断业务码是否为成功。
func (r *CodeResponse) IsSuccess() bool {
	if r == nil {
		return true
	}
	code := strings.ToUpper(string(r.CodeValue))
	return code == "" || code == "0" || code == "SUCCESS"
}

// Error 满足 error 接口，便于 httpclient 包装。
func (r *CodeResponse) Error() string {
	return fmt.Sprintf("%s: %s", r.Code(), r.Message())
}

// Code 返回统一错误码。
func (r *CodeResponse) Code() string {
	if r == nil {
		return ""
	}
	return string(r.CodeValue)
}

// Message 返回服务端消息。
func (r *CodeResponse) Message() string {
	if r == nil {
		return ""
	}
	return r.Msg
}
