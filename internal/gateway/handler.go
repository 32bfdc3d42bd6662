package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	graphql "github.com/graph-gophers/graphql-go"

	"github.com/hitoshi/photoshare/internal/model"
)

// graphqlRequest はPOST /graphqlのリクエストボディ。
type graphqlRequest struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName"`
	Variables     map[string]interface{} `json:"variables"`
}

// Handler はGraphQLのHTTPエンドポイントを処理する。
// アイデンティティの解決はミドルウェアが済ませている前提で、
// 受信した操作を検証ガードに通してからスキーマへ渡す。
type Handler struct {
	schema        *graphql.Schema
	guard         *Guard
	logger        *slog.Logger
	maxUploadSize int64
}

// NewHandler はHandlerを生成する。maxUploadSizeはmultipartボディの上限バイト数。
func NewHandler(schema *graphql.Schema, guard *Guard, maxUploadSize int64, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		schema:        schema,
		guard:         guard,
		logger:        logger,
		maxUploadSize: maxUploadSize,
	}
}

// ServeHTTP はPOST /graphqlを処理する。
// application/jsonの通常リクエストと、写真バイナリを伴う
// multipart/form-dataリクエスト（operations/map/ファイルパート形式）に対応する。
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req *graphqlRequest
	var err error

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		req, err = h.parseMultipart(r)
	default:
		req = &graphqlRequest{}
		err = json.NewDecoder(r.Body).Decode(req)
	}
	if err != nil {
		h.logger.Warn("failed to parse graphql request", slog.String("error", err.Error()))
		writeGraphQLError(w, model.NewValidationRejectedError("failed to parse request body"))
		return
	}

	// 実行前の静的検証。拒否された操作はリゾルバーに到達しない。
	if err := h.guard.Validate(req.Query); err != nil {
		writeGraphQLError(w, err)
		return
	}

	response := h.schema.Exec(r.Context(), req.Query, req.OperationName, req.Variables)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed to write graphql response", slog.String("error", err.Error()))
	}
}

// parseMultipart はGraphQL multipartリクエストを解析し、
// ファイルパートをmapで指定された変数パスへ差し込む。
func (h *Handler) parseMultipart(r *http.Request) (*graphqlRequest, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		return nil, fmt.Errorf("failed to parse multipart form: %w", err)
	}

	req := &graphqlRequest{}
	if err := json.Unmarshal([]byte(r.FormValue("operations")), req); err != nil {
		return nil, fmt.Errorf("failed to parse operations field: %w", err)
	}

	var fileMap map[string][]string
	if err := json.Unmarshal([]byte(r.FormValue("map")), &fileMap); err != nil {
		return nil, fmt.Errorf("failed to parse map field: %w", err)
	}

	for part, paths := range fileMap {
		file, header, err := r.FormFile(part)
		if err != nil {
			return nil, fmt.Errorf("failed to read file part %q: %w", part, err)
		}
		upload := Upload{File: file, Filename: header.Filename, Size: header.Size}
		for _, path := range paths {
			if err := injectUpload(req.Variables, path, upload); err != nil {
				return nil, err
			}
		}
	}

	return req, nil
}

// injectUpload は"variables.input.file"形式のパスが指す位置へUpload値を書き込む。
func injectUpload(variables map[string]interface{}, path string, upload Upload) error {
	segments := strings.Split(path, ".")
	if len(segments) < 2 || segments[0] != "variables" {
		return fmt.Errorf("invalid upload path %q", path)
	}

	target := variables
	for _, seg := range segments[1 : len(segments)-1] {
		next, ok := target[seg].(map[string]interface{})
		if !ok {
			return fmt.Errorf("upload path %q does not resolve to a variable", path)
		}
		target = next
	}
	if target == nil {
		return fmt.Errorf("upload path %q does not resolve to a variable", path)
	}
	target[segments[len(segments)-1]] = upload
	return nil
}

// writeGraphQLError は実行に至らなかったエラーをGraphQLレスポンス形式で返す。
// ステータスは200で、エラーはerrors配列に載せる。
func writeGraphQLError(w http.ResponseWriter, err error) {
	type gqlError struct {
		Message    string                 `json:"message"`
		Extensions map[string]interface{} `json:"extensions,omitempty"`
	}

	e := gqlError{Message: err.Error()}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		e.Extensions = apiErr.Extensions()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"errors": []gqlError{e},
	})
}
