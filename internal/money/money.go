// Package money 最小货币单位换算、价格格式化、地区到货币映射
package money

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
)

// zeroDecimal 无小数位货币，优先于 ISO 规则
var zeroDecimal = map[string]bool{
	"JPY": true, "KRW": true, "VND": true, "CLP": true, "ISK": true, "HUF": true,
}

var symbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
	"KRW": "₩",
	"CAD": "CA$",
	"AUD": "A$",
	"NZD": "NZ$",
	"HKD": "HK$",
	"TWD": "NT$",
	"BRL": "R$",
	"MXN": "MX$",
	"RUB": "₽",
	"TRY": "₺",
	"PLN": "zł",
	"INR": "₹",
	"CNY": "CN¥",
	"VND": "₫",
	"BTC": "₿",
}

// Exponent 最小单位的小数位数：无小数位货币为 0，其余一律 2（amount_minor/100）
func Exponent(code string) int32 {
	code = strings.ToUpper(strings.TrimSpace(code))
	if zeroDecimal[code] {
		return 0
	}
	if u, err := currency.ParseISO(code); err == nil {
		if scale, _ := currency.Standard.Rounding(u); scale == 0 {
			return 0
		}
	}
	return 2
}

// IsISO 是否为 ISO-4217 货币代码
func IsISO(code string) bool {
	_, err := currency.ParseISO(strings.TrimSpace(code))
	return err == nil
}

// ToMinor 主单位金额转为最小单位整数，四舍五入
func ToMinor(major decimal.Decimal, code string) int64 {
	return major.Shift(Exponent(code)).Round(0).IntPart()
}

// ToMajor 最小单位整数转为主单位金额
func ToMajor(minor int64, code string) decimal.Decimal {
	return decimal.New(minor, -Exponent(code))
}

var amountPattern = regexp.MustCompile(`-?\d[\d.,]*`)

// ParseMajor 解析 "$4.99"、"4,99 €"、"1.299,00" 之类的展示价格
func ParseMajor(s string) (decimal.Decimal, error) {
	m := amountPattern.FindString(s)
	if m == "" {
		return decimal.Zero, fmt.Errorf("无法解析价格: %q", s)
	}
	lastDot, lastComma := strings.LastIndex(m, "."), strings.LastIndex(m, ",")
	switch {
	case lastComma > lastDot && len(m)-lastComma-1 != 3:
		// 逗号为小数点
		m = strings.ReplaceAll(m, ".", "")
		m = strings.Replace(m, ",", ".", 1)
	default:
		m = strings.ReplaceAll(m, ",", "")
	}
	d, err := decimal.NewFromString(m)
	if err != nil {
		return decimal.Zero, fmt.Errorf("无法解析价格 %q: %w", s, err)
	}
	return d, nil
}

// Symbol 货币符号，未知时返回ISO代码
func Symbol(code string) (string, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if s, ok := symbols[code]; ok {
		return s, true
	}
	return code, false
}

// FormatPrice 人类可读价格：零小数位货币不带小数点；未知符号用 "CODE 12.34"
func FormatPrice(amountMinor int64, code string) string {
	if amountMinor < 0 {
		return "N/A"
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	exp := Exponent(code)
	amount := ToMajor(amountMinor, code).StringFixed(exp)
	if sym, ok := Symbol(code); ok {
		return sym + amount
	}
	return code + " " + amount
}

var countryCurrency = map[string][2]string{
	"US": {"USD", "US Dollar"},
	"CA": {"CAD", "Canadian Dollar"},
	"AU": {"AUD", "Australian Dollar"},
	"NZ": {"NZD", "New Zealand Dollar"},
	"GB": {"GBP", "British Pound"},
	"PL": {"PLN", "Polish Zloty"},
	"RU": {"RUB", "Russian Ruble"},
	"TR": {"TRY", "Turkish Lira"},
	"JP": {"JPY", "Japanese Yen"},
	"KR": {"KRW", "South Korean Won"},
	"BR": {"BRL", "Brazilian Real"},
	"HK": {"HKD", "Hong Kong Dollar"},
	"TW": {"TWD", "New Taiwan Dollar"},
	"SE": {"SEK", "Swedish Krona"},
	"NO": {"NOK", "Norwegian Krone"},
	"DK": {"DKK", "Danish Krone"},
	"ZA": {"ZAR", "South African Rand"},
	"SA": {"SAR", "Saudi Riyal"},
	"AR": {"ARS", "Argentine Peso"},
	"MX": {"MXN", "Mexican Peso"},
}

var euroArea = []string{"DE", "FR", "ES", "IT", "NL", "BE", "PT", "IE", "FI", "GR", "AT", "LU", "SI", "SK", "LV", "LT", "EE", "MT", "CY"}

func init() {
	for _, c := range euroArea {
		countryCurrency[c] = [2]string{"EUR", "Euro"}
	}
}

// CurrencyForCountry 国家/地区代码（支持 alpha-2、alpha-3）到货币；未知地区按美元
func CurrencyForCountry(country string) (code, name string) {
	cc := strings.ToUpper(strings.TrimSpace(country))
	if r, err := language.ParseRegion(cc); err == nil {
		cc = r.String()
	}
	if v, ok := countryCurrency[cc]; ok {
		return v[0], v[1]
	}
	return "USD", "US Dollar"
}
