package field

import (
	_ "embed"
	"encoding/json"
	"strings"
	"sync"
)

//go:embed industry.json
var industryJSON []byte

// IndustryNode is one level of the industry classification tree.
type IndustryNode struct {
	Label    string         `json:"label"`
	Value    string         `json:"value"`
	Children []IndustryNode `json:"children,omitempty"`
}

const industrySeparator = "-"

var industryTree = sync.OnceValue(func() []IndustryNode {
	var nodes []IndustryNode
	if err := json.Unmarshal(industryJSON, &nodes); err != nil {
		panic("field: invalid embedded industry dictionary: " + err.Error())
	}
	return nodes
})

// IndustryTree returns the embedded classification tree.
func IndustryTree() []IndustryNode {
	return industryTree()
}

// IndustryNames maps a code path such as "1-101" to its name path.
func IndustryNames(codes string) (string, bool) {
	return walkIndustry(codes, func(n IndustryNode) string { return n.Value }, func(n IndustryNode) string { return n.Label })
}

// IndustryCodes maps a name path such as "信息技术-软件开发" to its code path.
func IndustryCodes(names string) (string, bool) {
	return walkIndustry(names, func(n IndustryNode) string { return n.Label }, func(n IndustryNode) string { return n.Value })
}

func walkIndustry(path string, match, emit func(IndustryNode) string) (string, bool) {
	parts := strings.Split(path, industrySeparator)
	out := make([]string, 0, len(parts))

	level := industryTree()
	for _, part := range parts {
		part = strings.TrimSpace(part)
		found := false
		for _, node := range level {
			if match(node) == part {
				out = append(out, emit(node))
				level = node.Children
				found = true
				break
			}
		}
		if !found {
			return "", false
		}
	}
	return strings.Join(out, industrySeparator), true
}
