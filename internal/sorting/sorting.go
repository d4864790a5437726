// Package sorting реализует политики сортировки комментариев.
//
// Все функции чистые: ключ зависит только от полей комментария и режима,
// поэтому его безопасно пересчитывать при каждом построении выдачи.
// Порядок всегда полный: последним критерием идёт id по возрастанию.
package sorting

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/pribylovaa/comment-tree/internal/models"
)

// ErrUnknownMode - неизвестное имя режима сортировки.
var ErrUnknownMode = errors.New("unknown sort mode")

// Mode - режим сортировки.
type Mode uint8

const (
	Hot Mode = iota + 1
	Top
	New
	Old
	Controversial
)

// hotEpoch - точка отсчёта для hot (секунды unix).
const hotEpoch = 1134028003

// hotPeriod - сколько секунд "стоит" один порядок рейтинга в hot.
const hotPeriod = 45000.0

var modeNames = map[Mode]string{
	Hot:           "hot",
	Top:           "top",
	New:           "new",
	Old:           "old",
	Controversial: "controversial",
}

// Modes возвращает все режимы в фиксированном порядке.
func Modes() []Mode {
	return []Mode{Hot, Top, New, Old, Controversial}
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}

	return fmt.Sprintf("mode(%d)", uint8(m))
}

// Valid сообщает, что режим известен.
func (m Mode) Valid() bool {
	_, ok := modeNames[m]
	return ok
}

// ParseMode разбирает имя режима (без учёта регистра).
// Пустая строка означает Hot.
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Hot, nil
	}

	for m, name := range modeNames {
		if name == s {
			return m, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Key - ключ сортировки. Сравнивается лексикографически по возрастанию:
// меньший ключ показывается раньше.
type Key struct {
	Rank  float64
	Stamp int64
	ID    string
}

// Compare сравнивает ключи: -1, 0 или +1.
func Compare(a, b Key) int {
	if c := cmp.Compare(a.Rank, b.Rank); c != 0 {
		return c
	}

	if c := cmp.Compare(a.Stamp, b.Stamp); c != 0 {
		return c
	}

	return strings.Compare(a.ID, b.ID)
}

// KeyFunc - ключ комментария для одного режима.
type KeyFunc func(c *models.Comment) Key

var keyFuncs = map[Mode]KeyFunc{
	Hot: func(c *models.Comment) Key {
		return Key{Rank: -hot(c.Ups, c.Downs, c.CreatedAt.Unix()), ID: c.ID}
	},
	Top: func(c *models.Comment) Key {
		return Key{Rank: -float64(c.Score()), ID: c.ID}
	},
	New: func(c *models.Comment) Key {
		return Key{Stamp: -c.CreatedAt.UnixNano(), ID: c.ID}
	},
	Old: func(c *models.Comment) Key {
		return Key{Stamp: c.CreatedAt.UnixNano(), ID: c.ID}
	},
	Controversial: func(c *models.Comment) Key {
		return Key{Rank: -controversy(c.Ups, c.Downs), ID: c.ID}
	},
}

func byID(c *models.Comment) Key { return Key{ID: c.ID} }

// KeyFor возвращает функцию ключа режима. Неизвестный режим ранжирует только по id.
func KeyFor(m Mode) KeyFunc {
	if f, ok := keyFuncs[m]; ok {
		return f
	}

	return byID
}

// KeyOf вычисляет ключ комментария для режима.
func KeyOf(c *models.Comment, m Mode) Key {
	return KeyFor(m)(c)
}

// hot - логарифм рейтинга плюс линейный бонус за свежесть.
// Время берётся абсолютным, так что функция не зависит от "сейчас".
func hot(ups, downs, createdUnix int64) float64 {
	s := ups - downs
	order := math.Log10(math.Max(math.Abs(float64(s)), 1))

	var sign float64
	switch {
	case s > 0:
		sign = 1
	case s < 0:
		sign = -1
	}

	seconds := float64(createdUnix - hotEpoch)
	return sign*order + seconds/hotPeriod
}

// controversy высока, когда голосов много и они разделились поровну.
func controversy(ups, downs int64) float64 {
	if ups <= 0 || downs <= 0 {
		return 0
	}

	magnitude := float64(ups + downs)
	balance := float64(downs) / float64(ups)
	if ups < downs {
		balance = float64(ups) / float64(downs)
	}

	return math.Pow(magnitude, balance)
}

// SortIDs сортирует id по ключам комментариев из lookup.
// id, для которых lookup ничего не нашёл, уходят в конец по возрастанию id.
func SortIDs(ids []string, lookup func(id string) (*models.Comment, bool), m Mode) {
	type entry struct {
		id  string
		key Key
		ok  bool
	}

	keyOf := KeyFor(m)

	entries := make([]entry, len(ids))
	for i, id := range ids {
		e := entry{id: id}
		if c, ok := lookup(id); ok {
			e.key, e.ok = keyOf(c), true
		}
		entries[i] = e
	}

	slices.SortFunc(entries, func(a, b entry) int {
		switch {
		case a.ok && b.ok:
			return Compare(a.key, b.key)
		case a.ok:
			return -1
		case b.ok:
			return 1
		default:
			return strings.Compare(a.id, b.id)
		}
	})

	for i := range entries {
		ids[i] = entries[i].id
	}
}
