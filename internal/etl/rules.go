package etl

import (
	"fmt"
	"strings"

	"github.com/BartekS5/catalog-migrator/pkg/models"
	"github.com/BartekS5/catalog-migrator/pkg/utils"
	"github.com/PuerkitoBio/goquery"
)

var knownSteps = map[string]bool{
	"first":      true,
	"array":      true,
	"number":     true,
	"int":        true,
	"bool":       true,
	"string":     true,
	"strip_html": true,
}

// checkTransform rejects chains with steps applyTransform does not know.
func checkTransform(chain string) error {
	for _, step := range models.SplitTransform(chain) {
		if _, ok := models.ValueMapName(step); ok {
			continue
		}
		if !knownSteps[step] {
			return fmt.Errorf("unknown transform step %q", step)
		}
	}
	return nil
}

// applyRule evaluates one FieldMappingRule against bag. Sources are tried in
// order; the first one that is non-empty before and after the transform wins.
func applyRule(bag models.FieldBag, rule models.FieldMappingRule, valueMaps map[string]map[string]string) (interface{}, bool) {
	for _, key := range rule.From {
		raw, ok := bag.Get(key)
		if !ok || utils.IsEmpty(raw) {
			continue
		}
		val := applyTransform(raw, rule.Transform, valueMaps)
		if val == nil || utils.IsEmpty(val) {
			continue
		}
		return val, true
	}
	return nil, false
}

func applyTransform(val interface{}, chain string, valueMaps map[string]map[string]string) interface{} {
	for _, step := range models.SplitTransform(chain) {
		if val == nil {
			return nil
		}
		if name, ok := models.ValueMapName(step); ok {
			val = remapValues(val, valueMaps[name])
			continue
		}

		switch step {
		case "first":
			val = utils.GetFirst(val)
		case "array":
			val = utils.NormalizeArray(val)
		case "number":
			n, err := utils.ParseNumber(utils.GetFirst(val))
			if err != nil {
				return nil
			}
			val = n
		case "int":
			n, err := utils.ParseNumber(utils.GetFirst(val))
			if err != nil {
				return nil
			}
			val = int(n)
		case "bool":
			val = utils.ToBool(val)
		case "string":
			val = utils.ToString(val)
		case "strip_html":
			val = stripHTML(utils.ToString(val))
		}
	}
	return val
}

// remapValues translates a scalar or each element of an array through table.
// Lookups ignore case; values without a mapping are dropped.
func remapValues(val interface{}, table map[string]string) interface{} {
	lookup := func(v interface{}) (string, bool) {
		s := utils.ToString(v)
		if mapped, ok := table[s]; ok {
			return mapped, true
		}
		for from, to := range table {
			if strings.EqualFold(from, s) {
				return to, true
			}
		}
		return "", false
	}

	switch val.(type) {
	case []interface{}, []string:
		out := make([]interface{}, 0)
		seen := make(map[string]bool)
		for _, item := range utils.NormalizeArray(val) {
			mapped, ok := lookup(item)
			if !ok || seen[mapped] {
				continue
			}
			seen[mapped] = true
			out = append(out, mapped)
		}
		return out
	default:
		if mapped, ok := lookup(val); ok {
			return mapped
		}
		return nil
	}
}

// stripHTML returns the visible text of an HTML fragment with whitespace collapsed.
func stripHTML(s string) string {
	if !strings.Contains(s, "<") && !strings.Contains(s, "&") {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// setPath writes val into dst at a dotted path, creating nested maps.
func setPath(dst map[string]interface{}, path string, val interface{}) {
	parts := strings.Split(path, ".")
	cur := dst
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			cur[part] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = val
}
