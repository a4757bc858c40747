package parser

import (
	"bytes"
	"embed"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/starford/robotdb/internal/apperr"
	"github.com/starford/robotdb/internal/models"
)

//go:embed specs/*.json
var bundledSpecs embed.FS

// xmlSpec covers both the legacy libdoc layout (<kw> directly under the
// root) and the RF 4+ layout (<keywords><keyword>).
type xmlSpec struct {
	XMLName  xml.Name
	Name     string       `xml:"name,attr"`
	Type     string       `xml:"type,attr"`
	Legacy   []xmlKeyword `xml:"kw"`
	Keywords []xmlKeyword `xml:"keywords>keyword"`
}

type xmlKeyword struct {
	Name string   `xml:"name,attr"`
	Args []xmlArg `xml:"arguments>arg"`
	Doc  string   `xml:"doc"`
	Tags []string `xml:"tags>tag"`
}

type xmlArg struct {
	Repr string `xml:"repr,attr"`
	Text string `xml:",chardata"`
}

func (a xmlArg) String() string {
	if a.Repr != "" {
		return a.Repr
	}
	return strings.TrimSpace(a.Text)
}

// parseXMLSpec reads a libdoc XML spec. The root must be a keywordspec of
// type library.
func parseXMLSpec(data []byte) (string, []models.Keyword, error) {
	var spec xmlSpec
	if err := xml.NewDecoder(bytes.NewReader(data)).Decode(&spec); err != nil {
		return "", nil, fmt.Errorf("parser: decode xml spec: %w", err)
	}
	if spec.XMLName.Local != "keywordspec" || !strings.EqualFold(spec.Type, "library") {
		return "", nil, fmt.Errorf("parser: root <%s type=%q>: %w", spec.XMLName.Local, spec.Type, apperr.ErrNotLibrarySpec)
	}

	var out []models.Keyword
	for _, kw := range append(spec.Legacy, spec.Keywords...) {
		args := make([]string, 0, len(kw.Args))
		for _, a := range kw.Args {
			if s := a.String(); s != "" {
				args = append(args, s)
			}
		}
		out = append(out, models.Keyword{
			Name:          kw.Name,
			Arguments:     args,
			Documentation: strings.TrimSpace(kw.Doc),
			Tags:          kw.Tags,
		})
	}
	return spec.Name, out, nil
}

type jsonSpec struct {
	Name     string        `json:"name"`
	Type     string        `json:"type"`
	Keywords []jsonKeyword `json:"keywords"`
}

type jsonKeyword struct {
	Name string    `json:"name"`
	Args []jsonArg `json:"args"`
	Doc  string    `json:"doc"`
	Tags []string  `json:"tags"`
}

// jsonArg accepts both plain strings (old libdoc JSON) and argument
// objects with a "repr" field (RF 4+).
type jsonArg string

func (a *jsonArg) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = jsonArg(s)
		return nil
	}
	var obj struct {
		Repr string `json:"repr"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if obj.Repr != "" {
		*a = jsonArg(obj.Repr)
	} else {
		*a = jsonArg(obj.Name)
	}
	return nil
}

// parseJSONSpec reads a libdoc JSON spec.
func parseJSONSpec(data []byte) (string, []models.Keyword, error) {
	var spec jsonSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return "", nil, fmt.Errorf("parser: decode json spec: %w", err)
	}
	if spec.Type != "" && !strings.EqualFold(spec.Type, "library") {
		return "", nil, fmt.Errorf("parser: spec type %q: %w", spec.Type, apperr.ErrNotLibrarySpec)
	}
	out := make([]models.Keyword, 0, len(spec.Keywords))
	for _, kw := range spec.Keywords {
		args := make([]string, 0, len(kw.Args))
		for _, a := range kw.Args {
			if a != "" {
				args = append(args, string(a))
			}
		}
		out = append(out, models.Keyword{
			Name:          kw.Name,
			Arguments:     args,
			Documentation: strings.TrimSpace(kw.Doc),
			Tags:          kw.Tags,
		})
	}
	return spec.Name, out, nil
}

// bundledSpec returns the embedded spec for a standard library, if any.
func bundledSpec(name string) ([]byte, bool) {
	data, err := bundledSpecs.ReadFile("specs/" + name + ".json")
	if err != nil {
		return nil, false
	}
	return data, true
}
