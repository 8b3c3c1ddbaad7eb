package normalize

import (
	"regexp"
	"strings"
	"unicode"
)

// MinSimilarity 模糊匹配接受阈值
const MinSimilarity = 0.80

const platformPC = "PC"

type platformDef struct {
	name    string
	aliases []string
}

// 规范平台名及别名
var platformVocabulary = []platformDef{
	{platformPC, []string{"windows", "microsoft windows", "pc windows", "dos"}},
	{"Mac", []string{"macos", "mac os", "os x", "macintosh", "apple mac"}},
	{"Linux", []string{"gnu linux", "ubuntu"}},
	{"PlayStation", []string{"ps1", "psx", "ps one", "playstation 1", "sony playstation"}},
	{"PlayStation 2", []string{"ps2", "sony playstation 2"}},
	{"PlayStation 3", []string{"ps3", "sony playstation 3"}},
	{"PlayStation 4", []string{"ps4", "ps4 pro", "sony playstation 4"}},
	{"PlayStation 5", []string{"ps5", "ps5 pro", "sony playstation 5"}},
	{"PlayStation Portable", []string{"psp", "sony psp"}},
	{"PlayStation Vita", []string{"ps vita", "psvita", "vita"}},
	{"Xbox", []string{"original xbox", "microsoft xbox"}},
	{"Xbox 360", []string{"x360", "xb360", "microsoft xbox 360"}},
	{"Xbox One", []string{"xb1", "xbone", "xbox one s", "xbox one x"}},
	{"Xbox Series X", []string{"xsx", "series x", "microsoft xbox series x"}},
	{"Xbox Series S", []string{"xss", "series s", "microsoft xbox series s"}},
	{"Nintendo Switch", []string{"switch", "nsw", "ns"}},
	{"Nintendo Switch 2", []string{"switch 2", "ns2"}},
	{"Wii", []string{"nintendo wii"}},
	{"Wii U", []string{"wiiu", "nintendo wii u"}},
	{"Nintendo 3DS", []string{"3ds", "new nintendo 3ds", "n3ds"}},
	{"Nintendo DS", []string{"nds", "ds", "nintendo dsi"}},
	{"Nintendo 64", []string{"n64"}},
	{"GameCube", []string{"nintendo gamecube", "ngc", "gcn"}},
	{"Game Boy", []string{"gb", "nintendo game boy"}},
	{"Game Boy Color", []string{"gbc"}},
	{"Game Boy Advance", []string{"gba"}},
	{"NES", []string{"nintendo entertainment system", "famicom"}},
	{"SNES", []string{"super nintendo", "super nintendo entertainment system", "super famicom"}},
	{"Sega Genesis", []string{"genesis", "mega drive", "sega mega drive"}},
	{"Sega Saturn", []string{"saturn"}},
	{"Dreamcast", []string{"sega dreamcast"}},
	{"iOS", []string{"iphone", "ipad", "apple ios"}},
	{"Android", []string{"google android"}},
	{"Stadia", []string{"google stadia"}},
}

type platformCandidate struct {
	name  string
	gen   string
	forms []string
}

var platformCandidates = buildCandidates()

var (
	pcPattern      = regexp.MustCompile(`(?i)\b(pc|windows|steam|epic)\b`)
	seriesLeft     = regexp.MustCompile(`(?i)^(.*\S)\s+series(?:\s*x)?$`)
	seriesRight    = regexp.MustCompile(`(?i)^s$`)
	trailingDigits = regexp.MustCompile(`^(.*?)(\d+)$`)
	allDigits      = regexp.MustCompile(`^\d+$`)
	digitRun       = regexp.MustCompile(`\d+`)
	spelledNumber  = regexp.MustCompile(`(?i)\b(one|two|three|four|five)\b`)
	psShorthand    = regexp.MustCompile(`^(sony)?ps(\d)`)
	regionPrefixes = []string{"ntsc", "pal", "jpy"}
	spelledToDigit = map[string]string{"one": "1", "two": "2", "three": "3", "four": "4", "five": "5"}
)

func buildCandidates() []platformCandidate {
	out := make([]platformCandidate, 0, len(platformVocabulary))
	for _, def := range platformVocabulary {
		c := platformCandidate{name: def.name, gen: generationToken(def.name)}
		c.forms = append(c.forms, compact(def.name))
		for _, a := range def.aliases {
			c.forms = append(c.forms, compact(a))
		}
		out = append(out, c)
	}
	return out
}

// NormalizeMany 规范化平台列表，结果按首次出现顺序去重
func NormalizeMany(raw []string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(raw))
	for _, entry := range raw {
		for _, token := range splitEntry(entry) {
			name, _ := Normalize(token)
			if name == "" {
				continue
			}
			key := strings.ToLower(name)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, name)
		}
	}
	return out
}

// Normalize 规范化单个平台名；匹配失败时原样返回（去首尾空白）且 ok=false
func Normalize(raw string) (string, bool) {
	token := strings.TrimSpace(raw)
	if token == "" {
		return "", false
	}
	stripped := stripRegion(token)
	if pcPattern.MatchString(stripped) {
		return platformPC, true
	}

	input := compact(stripped)
	if input == "" {
		return token, false
	}
	gen := generationToken(stripped)

	best, bestScore := "", 0.0
	for _, c := range platformCandidates {
		if gen != "" && c.gen != "" && gen != c.gen {
			continue
		}
		for _, form := range c.forms {
			if s := JaroWinkler(input, form); s > bestScore {
				best, bestScore = c.name, s
			}
		}
	}
	if bestScore >= MinSimilarity {
		return best, true
	}
	return token, false
}

// splitEntry 处理 "X|S"、"4/5" 等组合写法
func splitEntry(entry string) []string {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return nil
	}
	// 原样切分，"PS4||PS5"、"PS4/" 不算两段
	parts := strings.Split(strings.ReplaceAll(entry, "/", "|"), "|")
	if len(parts) != 2 {
		return []string{entry}
	}
	left, right := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	if left == "" || right == "" {
		return []string{entry}
	}

	if len([]rune(right)) <= 2 {
		if m := seriesLeft.FindStringSubmatch(left); m != nil && seriesRight.MatchString(right) {
			return []string{m[1] + " Series X", m[1] + " Series S"}
		}
	}
	if allDigits.MatchString(right) {
		if m := trailingDigits.FindStringSubmatch(left); m != nil {
			return []string{left, m[1] + right}
		}
	}
	return []string{left, right}
}

// stripRegion 去掉 JPY-/PAL-/NTSC- 前缀，分隔符可省略
func stripRegion(s string) string {
	lower := strings.ToLower(s)
	for _, p := range regionPrefixes {
		if !strings.HasPrefix(lower, p) || len(s) == len(p) {
			continue
		}
		rest := s[len(p):]
		next := []rune(rest)[0]
		switch {
		case next == '-' || next == '_' || unicode.IsSpace(next):
			return strings.TrimSpace(strings.TrimLeft(rest, "-_ \t"))
		case knownForm(rest):
			// "PALPS4"、"palps4" 之类连写
			return rest
		}
	}
	return s
}

// knownForm 去掉前缀后的剩余部分是否正好是已知平台写法
func knownForm(s string) bool {
	if pcPattern.MatchString(s) {
		return true
	}
	c := compact(s)
	for _, cand := range platformCandidates {
		for _, form := range cand.forms {
			if c == form {
				return true
			}
		}
	}
	return false
}

// generationToken 第一个数字串，或英文 one..five 对应的数字
func generationToken(s string) string {
	if d := digitRun.FindString(s); d != "" {
		return d
	}
	if m := spelledNumber.FindStringSubmatch(s); m != nil {
		return spelledToDigit[strings.ToLower(m[1])]
	}
	return ""
}

// compact 小写并去掉标点空白，"ps4" 展开为 "playstation4"
func compact(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return psShorthand.ReplaceAllString(b.String(), "${1}playstation${2}")
}

// PlatformNames 从payload平台字段中取出名称
// 兼容字符串、逗号分隔字符串、字符串数组，以及 {"name"} / {"platform":{"name"}} 对象数组
func PlatformNames(v interface{}) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		var out []string
		for _, s := range strings.Split(t, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return t
	case []interface{}:
		var out []string
		for _, item := range t {
			switch it := item.(type) {
			case string:
				if s := strings.TrimSpace(it); s != "" {
					out = append(out, s)
				}
			case map[string]interface{}:
				if name := objectName(it); name != "" {
					out = append(out, name)
				}
			}
		}
		return out
	case map[string]interface{}:
		if name := objectName(t); name != "" {
			return []string{name}
		}
	}
	return nil
}

func objectName(m map[string]interface{}) string {
	if s, ok := m["name"].(string); ok {
		return strings.TrimSpace(s)
	}
	if inner, ok := m["platform"].(map[string]interface{}); ok {
		if s, ok := inner["name"].(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
