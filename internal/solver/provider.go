package solver

import "context"

// メッセージの役割
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message はAIプロバイダーへ送るメッセージ。
// ImageURLはdata URIまたはURLで、空でなければ画像として添付される。
type Message struct {
	Role     string
	Text     string
	ImageURL string
}

// Provider はチャット補完を行う外部AIプロバイダー。
// 1回の呼び出しで1件のテキストを返す。
type Provider interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}
