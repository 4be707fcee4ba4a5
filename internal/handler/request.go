package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/hitoshi/snapsolve/internal/auth"
	"github.com/hitoshi/snapsolve/internal/model"
)

// maxAuthBodyBytes は認証エンドポイントのリクエストボディ上限。
const maxAuthBodyBytes = 16 << 10

// requestValidate はリクエストスキーマの検証に使うバリデーター。
var requestValidate *validator.Validate

func init() {
	requestValidate = validator.New(validator.WithRequiredStructEnabled())
	requestValidate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = requestValidate.RegisterValidation("username", validateUsername)
	_ = requestValidate.RegisterValidation("bcryptlen", validateBcryptLength)
}

// validateBcryptLength はパスワードがbcryptで扱えるバイト長以内かを検証する。
// maxは文字数で数えるため、マルチバイト文字を含む場合はこちらで判定する。
func validateBcryptLength(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= auth.MaxPasswordBytes
}

// validateUsername はユーザー名に空白や制御文字が含まれないことを検証する。
func validateUsername(fl validator.FieldLevel) bool {
	for _, r := range fl.Field().String() {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// registerRequest は POST /api/register のリクエストボディ。
// パスワードの上限はbcryptが扱える72バイトに合わせる。
type registerRequest struct {
	Username string `json:"username" validate:"required,max=64,username"`
	Password string `json:"password" validate:"required,bcryptlen"`
}

// loginRequest は POST /api/login のリクエストボディ。
type loginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,bcryptlen"`
}

// guestLoginRequest は POST /api/guest-login のリクエストボディ。フィールドは持たない。
type guestLoginRequest struct{}

// solveRequest は POST /api/solve のリクエストボディ。
// imageはdata URIまたはURLで、形式は検証せずにそのまま転送する。
type solveRequest struct {
	Content    string `json:"content"`
	Image      string `json:"image"`
	Subject    string `json:"subject" validate:"required,max=64"`
	ClassLevel string `json:"classLevel" validate:"required,max=16"`
}

// decodeRequest はJSONボディをdstにデコードし、スキーマを検証する。
// 未知のフィールド、末尾の余分なデータ、上限超過はすべてVALIDATION_FAILEDとして扱う。
// allowEmptyがtrueの場合は空ボディを空オブジェクトとして受け付ける。
func decodeRequest(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any, allowEmpty bool) *model.APIError {
	body := http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		if !(allowEmpty && errors.Is(err, io.EOF)) {
			return decodeError(err)
		}
	} else if err := dec.Decode(&json.RawMessage{}); !errors.Is(err, io.EOF) {
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return model.NewValidationError("Request body too large")
			}
		}
		return model.NewValidationError("Request body must contain a single JSON object")
	}

	if err := requestValidate.Struct(dst); err != nil {
		return model.NewValidationError(validationMessage(err))
	}
	return nil
}

// decodeError はデコード失敗をクライアント向けのメッセージに変換する。
func decodeError(err error) *model.APIError {
	var maxErr *http.MaxBytesError
	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError

	switch {
	case errors.As(err, &maxErr):
		return model.NewValidationError("Request body too large")
	case errors.Is(err, io.EOF):
		return model.NewValidationError("Request body is required")
	case errors.As(err, &typeErr):
		return model.NewValidationError(fmt.Sprintf("Invalid type for field %q", typeErr.Field))
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return model.NewValidationError("Malformed JSON")
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		field := strings.TrimPrefix(err.Error(), "json: unknown field ")
		return model.NewValidationError("Unknown field " + field)
	default:
		return model.NewValidationError("Invalid request body")
	}
}

// validationMessage は最初の検証エラーをメッセージに変換する。
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request"
	}

	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "username":
		return fe.Field() + " must not contain spaces"
	case "bcryptlen":
		return fmt.Sprintf("%s must be at most %d bytes", fe.Field(), auth.MaxPasswordBytes)
	default:
		return fe.Field() + " is invalid"
	}
}
