// Package imaging holds the request and result types shared by the image
// acquisition pipeline.
package imaging

import "strings"

// Kind selects the fallback illustration and whether the static reference
// table applies.
type Kind int

const (
	KindCompound Kind = iota
	KindSolution
)

func (k Kind) String() string {
	switch k {
	case KindSolution:
		return "solution"
	default:
		return "compound"
	}
}

// ParseKind maps a wire value to a Kind. Anything unrecognized is a compound.
func ParseKind(s string) Kind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "solution":
		return KindSolution
	default:
		return KindCompound
	}
}

// Request is one logical image request. Key is the cache and dedup key;
// Prompt is only sent to the generator.
type Request struct {
	Key         string
	Prompt      string
	FormulaHint string
	Kind        Kind
}

// Source records which layer produced an image.
type Source string

const (
	SourceStatic   Source = "static"
	SourceCache    Source = "cache"
	SourceRemote   Source = "remote"
	SourceFallback Source = "fallback"
)

// Resolution is a displayable image string and where it came from.
type Resolution struct {
	Image  string
	Source Source
}
