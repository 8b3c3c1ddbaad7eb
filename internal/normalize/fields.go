package normalize

import "strings"

// 各数据源评分/评分人数字段优先级。未登记的数据源走 default。
var (
	ratingFields = map[string][]string{
		"igdb":          {"total_rating", "aggregated_rating", "rating"},
		"rawg":          {"rating", "metacritic"},
		"steam":         {"metacritic.score", "metacritic"},
		"giantbomb":     {"score", "reviews_score"},
		"tgdb":          {"rating"},
		"playstation":   {"star_rating.average_rating", "average_rating"},
		"xbox":          {"average_rating", "rating"},
		"amazon":        {"product_star_rating", "stars"},
		"pricecharting": {"rating"},
		"default":       {"rating", "user_ratings", "score", "product_star_rating", "aggregated_rating"},
	}
	countFields = map[string][]string{
		"igdb":        {"total_rating_count", "aggregated_rating_count", "rating_count"},
		"rawg":        {"ratings_count", "reviews_count"},
		"steam":       {"recommendations.total"},
		"playstation": {"star_rating.total_ratings_count", "total_ratings_count"},
		"xbox":        {"rating_count"},
		"amazon":      {"total_reviews", "reviews_count"},
		"default":     {"rating_count", "ratings_count", "votes", "review_count"},
	}
	igdbPercentFields = []string{"total_rating", "aggregated_rating", "rating"}
	platformFields    = []string{"platforms", "platform"}
)

// RatingFieldsFor 数据源对应的评分字段优先级
func RatingFieldsFor(provider string) []string {
	return lookupFields(ratingFields, provider)
}

// CountFieldsFor 数据源对应的评分人数字段优先级
func CountFieldsFor(provider string) []string {
	return lookupFields(countFields, provider)
}

// IGDBPercentFields IGDB 百分制评分字段优先级
func IGDBPercentFields() []string {
	return igdbPercentFields
}

// PlatformFields 平台字段候选
func PlatformFields() []string {
	return platformFields
}

func lookupFields(m map[string][]string, provider string) []string {
	if f, ok := m[strings.ToLower(strings.TrimSpace(provider))]; ok {
		return f
	}
	return m["default"]
}
