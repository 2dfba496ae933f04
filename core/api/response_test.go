package api

import (
	"encoding/json"
	"testing"
)

func TestCodeResponseAcceptsNumericAndStringCodes(t *testing.T) {
	cases := []struct {
		body string
		ok   bool
		code string
	}{
		{`{"code":0}`, true, "0"},
		{`{"code":"SUCCESS"}`, true, "SUCCESS"},
		{`{}`, true, ""},
		{`{"code":-1,"message":"bad"}`, false, "-1"},
		{`{"code":"InvalidAccessToken"}`, false, "InvalidAccessToken"},
	}
	for _, tc := range cases {
		var r CodeResponse
		if err := json.Unmarshal([]byte(tc.body), &r); err != nil {
			t.Fatalf("解析 %s 失败: %v", tc.body, err)
		}
		if r.IsSuccess() != tc.ok || r.Code() != tc.code {
			t.Fatalf("%s: IsSuccess=%v Code=%q", tc.body, r.IsSuccess(), r.Code())
		}
	}
}
