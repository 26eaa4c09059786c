package handler

import (
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/hitoshi/contactdesk/internal/model"
)

// errUploadTooLarge はファイルサイズが上限を超えた場合のエラー。
var errUploadTooLarge = errors.New("upload exceeds size limit")

// formUpload はmultipartフォームのファイル項目をUploadに変換する。
// 項目がない場合はnilを返す。呼び出し側はリクエスト終了までファイルを閉じない。
func formUpload(r *http.Request, field string, limit int64) (*model.Upload, multipart.File, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	if limit > 0 && header.Size > limit {
		file.Close()
		return nil, nil, errUploadTooLarge
	}

	return &model.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Content:     file,
	}, file, nil
}
