package linkedin

import (
	"strings"
	"unicode/utf8"

	"github.com/joaomazul/LinkedFlow-sub001/internal/apperrors"
)

// MaxCommentLength is LinkedIn's limit for comment and reply bodies.
const MaxCommentLength = 1250

// ValidateCommentText rejects comment bodies the API would refuse anyway,
// before any network call is made.
func ValidateCommentText(text string) error {
	if strings.TrimSpace(text) == "" {
		return apperrors.NewInvalidInput("o texto do comentário está vazio")
	}

	if utf8.RuneCountInString(text) > MaxCommentLength {
		return apperrors.NewInvalidInput(
			"o comentário excede o limite de %d caracteres", MaxCommentLength)
	}

	return nil
}
