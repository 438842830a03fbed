package transport

import (
	"io"
	"text/template"

	"github.com/loopvia/ringd/internal/node"
)

const dumpContent = `
{{- $h := . -}}
==========
Node State

Node ID:     {{ $h.NodeID }}
Status:      {{ $h.Status }}
Leader:      {{ if $h.LeaderID }}{{ $h.LeaderID }}{{ if $h.IsLeader }} (self){{ end }}{{ else }}(none){{ end }}
Delay:       {{ $h.Delay }}s

Prev:        {{ if $h.Prev }}{{ $h.Prev.ID }} @ {{ $h.Prev.Host }}{{ else }}(none){{ end }}
Next:        {{ if $h.Next }}{{ $h.Next.ID }} @ {{ $h.Next.Host }}{{ else }}(none){{ end }}
Next-next:   {{ if $h.NextNext }}{{ $h.NextNext.ID }} @ {{ $h.NextNext.Host }}{{ else }}(none){{ end }}
==========
`

var dumpTemplate = template.Must(template.New("dump").Parse(dumpContent))

// DumpState writes a text snapshot of a node's topology and election state
// to w, for operator use (GET /dump, `ringctl dump`).
func DumpState(w io.Writer, h node.HealthSnapshot) error {
	return dumpTemplate.Execute(w, h)
}
