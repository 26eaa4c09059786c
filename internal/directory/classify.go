package directory

import (
	"errors"

	"github.com/hitoshi/contactdesk/internal/model"
)

// Reason はクライアントのエラーをワークフローエラーの原因に分類する。
func Reason(err error) model.ErrorReason {
	switch {
	case IsStatusError(err):
		return model.ReasonRejected
	case errors.Is(err, ErrMalformedResponse):
		return model.ReasonMalformed
	default:
		return model.ReasonNetwork
	}
}

// UserMessage はユーザーに表示する文言を返す。
// APIが拒否した場合はAPIのmessage（無ければfallback）、それ以外は汎用メッセージ。
func UserMessage(err error, fallback string) string {
	if !IsStatusError(err) {
		return model.MsgUnexpected
	}
	if msg, ok := APIMessage(err); ok {
		return msg
	}
	return fallback
}
