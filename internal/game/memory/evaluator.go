package memory

// Matches 判定两张牌在给定配对规则下是否成对。
// 纯函数，只比较属性，与牌的位置和翻开状态无关。
func Matches(a, b Card, mt MatchType) bool {
	switch mt {
	case MatchByColor:
		return a.Color == b.Color
	case MatchByRank:
		return a.Rank == b.Rank
	case MatchBySuit:
		return a.Suit == b.Suit
	}
	return false
}
