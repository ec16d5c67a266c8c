package lalmax

import "fmt"

type ResCode int64

const (
	CodeSuccess      ResCode = 10000
	CodeInvalidParam ResCode = 10001
	CodeServerBusy   ResCode = 10002

	CodeGroupNotFound      ResCode = 11001
	CodeSessionNotFound    ResCode = 11002
	CodeStartRelayPullFail ResCode = 11003
)

var codeMsgMap = map[ResCode]string{
	CodeSuccess:            "success",
	CodeInvalidParam:       "请求参数错误",
	CodeServerBusy:         "服务繁忙",
	CodeGroupNotFound:      "group不存在",
	CodeSessionNotFound:    "session不存在",
	CodeStartRelayPullFail: "relay pull 失败",
}

// errOf 把非成功响应头转换为错误
func errOf(h FixedHeader) error {
	if h.Code == 0 || h.Code == CodeSuccess {
		return nil
	}
	msg := h.Msg
	if msg == "" {
		msg = codeMsgMap[h.Code]
	}
	return fmt.Errorf("lalmax: code %d: %s", h.Code, msg)
}
