// Package imagekit はImageKitメディアストレージ連携機能を提供する。
// アイキャッチ画像のアップロードと削除のAPI呼び出しを含む。
package imagekit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/hitoshi/blogman/internal/model"
)

const (
	// defaultUploadEndpoint はImageKitアップロードAPIのエンドポイント。
	defaultUploadEndpoint = "https://upload.imagekit.io/api/v1/files/upload"
	// defaultFileEndpoint はImageKitファイル管理APIのエンドポイント。
	defaultFileEndpoint = "https://api.imagekit.io/v1/files"
	// maxUploadBytes は1ファイルあたりのアップロード上限。
	maxUploadBytes = 10 << 20
)

// Client はImageKit APIのクライアント。
// 認証はプライベートキーのBasic認証（パスワード空）で行う。
type Client struct {
	httpClient     *http.Client
	logger         *slog.Logger
	privateKey     string
	folder         string
	uploadEndpoint string // テスト用にエンドポイントを差し替え可能
	fileEndpoint   string
}

// NewClient はClientの新しいインスタンスを生成する。
// folderはアップロード先のImageKitフォルダ（例: "/blog"）。
func NewClient(httpClient *http.Client, logger *slog.Logger, privateKey, folder string) *Client {
	return &Client{
		httpClient:     httpClient,
		logger:         logger,
		privateKey:     privateKey,
		folder:         folder,
		uploadEndpoint: defaultUploadEndpoint,
		fileEndpoint:   defaultFileEndpoint,
	}
}

// uploadResponse はImageKitアップロードAPIのレスポンス。
type uploadResponse struct {
	URL          string `json:"url"`
	FileID       string `json:"fileId"`
	ThumbnailURL string `json:"thumbnailUrl"`
}

// Upload は画像データをImageKitへアップロードし、格納先情報を返す。
// ファイル名はImageKit側でユニーク化される（useUniqueFileName）。
// 取得失敗時はエラーを返す（呼び出し元が操作の中断を判断する）。
func (c *Client) Upload(ctx context.Context, data []byte, fileName string) (*model.FeaturedImage, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("画像データが空です")
	}
	if len(data) > maxUploadBytes {
		return nil, fmt.Errorf("画像サイズが上限を超えています: %d > %d", len(data), maxUploadBytes)
	}

	// multipart/form-dataボディ構築
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return nil, fmt.Errorf("マルチパートボディの構築に失敗しました: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("マルチパートボディの構築に失敗しました: %w", err)
	}
	if err := writer.WriteField("fileName", fileName); err != nil {
		return nil, fmt.Errorf("マルチパートボディの構築に失敗しました: %w", err)
	}
	if err := writer.WriteField("folder", c.folder); err != nil {
		return nil, fmt.Errorf("マルチパートボディの構築に失敗しました: %w", err)
	}
	if err := writer.WriteField("useUniqueFileName", "true"); err != nil {
		return nil, fmt.Errorf("マルチパートボディの構築に失敗しました: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("マルチパートボディの構築に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadEndpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.SetBasicAuth(c.privateKey, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("ImageKitアップロードAPIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
			slog.String("file_name", fileName),
		)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("ImageKitアップロードAPIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("file_name", fileName),
		)
		return nil, fmt.Errorf("ImageKitアップロードAPIがステータス %d を返しました", resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var result uploadResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		c.logger.Error("ImageKitアップロードAPIのレスポンスのパースに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	if result.URL == "" || result.FileID == "" {
		return nil, fmt.Errorf("ImageKitアップロードAPIのレスポンスが不完全です")
	}

	return &model.FeaturedImage{
		URL:          result.URL,
		FileID:       result.FileID,
		ThumbnailURL: result.ThumbnailURL,
	}, nil
}

// Delete はファイルIDで画像を削除する。削除できた場合trueを返す。
// 既に存在しないファイル（404）はfalseを返すがエラーとしない。
// 記事操作を妨げないため、呼び出し元はベストエフォートとして扱ってよい。
func (c *Client) Delete(ctx context.Context, fileID string) (bool, error) {
	if fileID == "" {
		return false, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.fileEndpoint+"/"+fileID, nil)
	if err != nil {
		return false, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.SetBasicAuth(c.privateKey, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("ImageKit削除APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
			slog.String("file_id", fileID),
		)
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return true, nil
	case http.StatusNotFound:
		c.logger.Warn("削除対象の画像が見つかりませんでした",
			slog.String("file_id", fileID),
		)
		return false, nil
	default:
		c.logger.Error("ImageKit削除APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("file_id", fileID),
		)
		return false, fmt.Errorf("ImageKit削除APIがステータス %d を返しました", resp.StatusCode)
	}
}
