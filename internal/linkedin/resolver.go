package linkedin

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/joaomazul/LinkedFlow-sub001/internal/apperrors"
)

var (
	feedUpdateRe = regexp.MustCompile(`/feed/update/(urn:li:[a-zA-Z]+:\d+)`)
	ugcPostRe    = regexp.MustCompile(`/posts/[^/?#]*?-ugcPost-(\d{6,})(?:-[A-Za-z0-9]+)?(?:[/?#]|$)`)
	postSlugRe   = regexp.MustCompile(`/posts/[^/?#]*?-(\d{6,})(?:-[A-Za-z0-9]+)?(?:[/?#]|$)`)
	digitRunRe   = regexp.MustCompile(`\d{10,}`)
)

// ResolvePostURN normalizes a user-supplied post URL or URN into a
// canonical post URN. Patterns are tried in order: literal URN, the
// /feed/update/<urn> path, the /posts/...-ugcPost-<digits> path, the
// /posts/...-<digits> path, and finally any run of 10+ digits anywhere in
// the input.
func ResolvePostURN(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", apperrors.NewInvalidInput("URL do post vazia")
	}

	if strings.HasPrefix(input, "urn:li:") {
		return input, nil
	}

	if m := feedUpdateRe.FindStringSubmatch(input); m != nil {
		return m[1], nil
	}

	if m := ugcPostRe.FindStringSubmatch(input); m != nil {
		return fmt.Sprintf("urn:li:ugcPost:%s", m[1]), nil
	}

	if m := postSlugRe.FindStringSubmatch(input); m != nil {
		return fmt.Sprintf("urn:li:activity:%s", m[1]), nil
	}

	// Last resort: any long digit run is assumed to be an activity id.
	if m := digitRunRe.FindString(input); m != "" {
		return fmt.Sprintf("urn:li:activity:%s", m), nil
	}

	return "", apperrors.NewInvalidInput("não foi possível extrair o identificador do post de %q", input)
}
