package memory

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/google/uuid"
)

var (
	ErrInvalidBoardSize = errors.New("无效的棋盘尺寸")
	ErrInvalidMatchType = errors.New("无效的配对规则")
)

// Suit 花色
type Suit string

const (
	SuitHearts   Suit = "hearts"
	SuitDiamonds Suit = "diamonds"
	SuitClubs    Suit = "clubs"
	SuitSpades   Suit = "spades"
)

// suitOrder 生成底牌时的花色循环顺序
var suitOrder = []Suit{SuitHearts, SuitDiamonds, SuitClubs, SuitSpades}

// Color 卡牌颜色（由花色推导）
type Color string

const (
	ColorRed   Color = "red"
	ColorBlack Color = "black"
)

// ColorOf 返回花色对应的颜色
func ColorOf(s Suit) Color {
	if s == SuitHearts || s == SuitDiamonds {
		return ColorRed
	}
	return ColorBlack
}

// sameColorSuits 同色花色表
var sameColorSuits = map[Color][]Suit{
	ColorRed:   {SuitHearts, SuitDiamonds},
	ColorBlack: {SuitClubs, SuitSpades},
}

// Rank 点数（1-13，A到K）
type Rank int

const (
	MinRank Rank = 1
	MaxRank Rank = 13
)

// MatchType 配对规则：按颜色、点数或花色判定两张牌是否成对
type MatchType string

const (
	MatchByColor MatchType = "color"
	MatchByRank  MatchType = "rank"
	MatchBySuit  MatchType = "suit"
)

// Valid 检查配对规则是否合法
func (mt MatchType) Valid() bool {
	switch mt {
	case MatchByColor, MatchByRank, MatchBySuit:
		return true
	}
	return false
}

// BoardSize 棋盘尺寸
type BoardSize string

const (
	Board4x4 BoardSize = "4x4"
	Board4x6 BoardSize = "4x6"
	Board6x6 BoardSize = "6x6"
)

// Cells 返回棋盘格子总数
func (b BoardSize) Cells() (int, error) {
	switch b {
	case Board4x4:
		return 16, nil
	case Board4x6:
		return 24, nil
	case Board6x6:
		return 36, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrInvalidBoardSize, b)
}

// Card 卡牌
// Matched 为 true 时 Flipped 必然为 true：已配对的牌永远正面朝上。
type Card struct {
	ID       string `json:"id"`
	Suit     Suit   `json:"suit"`
	Rank     Rank   `json:"rank"`
	Color    Color  `json:"color"`
	Position int    `json:"position"`
	Flipped  bool   `json:"is_flipped"`
	Matched  bool   `json:"is_matched"`
}

// Available 卡牌是否可翻开（既未翻开也未配对）
func (c *Card) Available() bool {
	return !c.Flipped && !c.Matched
}

// newCard 创建一张背面朝上的牌
func newCard(suit Suit, rank Rank) Card {
	return Card{
		ID:    uuid.New().String(),
		Suit:  suit,
		Rank:  rank,
		Color: ColorOf(suit),
	}
}

// GenerateDeck 按棋盘尺寸和配对规则生成洗好的整副牌。
// 底牌按花色、点数循环生成，再为每张底牌合成一张满足配对规则的搭档牌，
// 最后对全部牌做 Fisher-Yates 洗牌并重排 Position。
func GenerateDeck(size BoardSize, mt MatchType, rng *rand.Rand) ([]Card, error) {
	total, err := size.Cells()
	if err != nil {
		return nil, err
	}
	if !mt.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMatchType, mt)
	}

	pairs := total / 2
	cards := make([]Card, 0, total)
	for i := 0; i < pairs; i++ {
		base := newCard(suitOrder[i%len(suitOrder)], Rank(i%int(MaxRank))+MinRank)
		cards = append(cards, base, makePartner(base, mt, rng))
	}

	shuffle(cards, rng)

	for i := range cards {
		cards[i].Position = i
	}
	return cards, nil
}

// makePartner 为底牌合成搭档牌，保证两牌满足给定配对规则
func makePartner(base Card, mt MatchType, rng *rand.Rand) Card {
	switch mt {
	case MatchByColor:
		// 同色异花
		candidates := make([]Suit, 0, 1)
		for _, s := range sameColorSuits[base.Color] {
			if s != base.Suit {
				candidates = append(candidates, s)
			}
		}
		return newCard(candidates[rng.Intn(len(candidates))], base.Rank)
	case MatchByRank:
		// 同点异花
		candidates := make([]Suit, 0, 3)
		for _, s := range suitOrder {
			if s != base.Suit {
				candidates = append(candidates, s)
			}
		}
		return newCard(candidates[rng.Intn(len(candidates))], base.Rank)
	default:
		// 同花异点
		r := Rank(rng.Intn(int(MaxRank)-1)) + MinRank
		if r >= base.Rank {
			r++
		}
		return newCard(base.Suit, r)
	}
}

// shuffle 无偏 Fisher-Yates 洗牌
func shuffle(cards []Card, rng *rand.Rand) {
	for i := len(cards) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		cards[i], cards[j] = cards[j], cards[i]
	}
}
