package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrCollaboratorTimeout は外部協調者の呼び出しが時間内に完了しなかった
	ErrCollaboratorTimeout = errors.New("collaborator timeout")

	// ErrCollaboratorUnavailable は外部協調者に到達できない、またはサーバーエラーを返した
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")

	// ErrQuotaExceeded はレート制限やクォータ超過
	ErrQuotaExceeded = errors.New("collaborator quota exceeded")

	// ErrInvalidInput は入力が協調者に拒否された
	ErrInvalidInput = errors.New("collaborator rejected input")
)

// CollaboratorError は外部協調者呼び出しの失敗を分類して保持する
type CollaboratorError struct {
	Provider string
	Op       string
	Kind     error
	Err      error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s: %s: %s: %v", e.Provider, e.Op, e.Kind, e.Err)
}

func (e *CollaboratorError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Retryable は再試行で回復し得る失敗かどうかを返す
func Retryable(err error) bool {
	return errors.Is(err, ErrCollaboratorTimeout) ||
		errors.Is(err, ErrCollaboratorUnavailable) ||
		errors.Is(err, ErrQuotaExceeded)
}

// Wrap は err を分類して CollaboratorError に包む
// statusCode は分かっている場合のHTTPステータス（不明なら0）
func Wrap(provider, op string, statusCode int, err error) error {
	if err == nil {
		return nil
	}
	var ce *CollaboratorError
	if errors.As(err, &ce) {
		return err
	}
	return &CollaboratorError{
		Provider: provider,
		Op:       op,
		Kind:     classify(statusCode, err),
		Err:      err,
	}
}

func classify(statusCode int, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrCollaboratorTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrCollaboratorTimeout
	}

	switch {
	case statusCode == 429:
		return ErrQuotaExceeded
	case statusCode == 408 || statusCode == 504:
		return ErrCollaboratorTimeout
	case statusCode >= 500:
		return ErrCollaboratorUnavailable
	case statusCode >= 400:
		return ErrInvalidInput
	}
	return ErrCollaboratorUnavailable
}
