package models

// ItemKind различает элементы плоской выдачи.
type ItemKind uint8

const (
	// KindComment - обычный комментарий.
	KindComment ItemKind = iota + 1
	// KindMore - маркер усечения ("загрузить ещё").
	KindMore
)

// String возвращает имя вида для логов и транспорта.
func (k ItemKind) String() string {
	switch k {
	case KindComment:
		return "comment"
	case KindMore:
		return "more"
	default:
		return "unknown"
	}
}

// More - маркер усечения: место, где список детей был обрезан.
// Не хранится, каждый Build/Expand выпускает свежие маркеры.
//   - ParentID пуст для уровня корней обсуждения;
//   - Children - пропущенные id в порядке сортировки;
//   - Count - число пропущенных видимых комментариев вместе со всеми потомками.
type More struct {
	ID       string
	ParentID string
	Children []string
	Count    int
	Depth    int
}

// Item - элемент плоской выдачи в порядке обхода в глубину.
// Для KindComment заполнен Comment, для KindMore - More.
type Item struct {
	Kind    ItemKind
	Depth   int
	Comment *Comment
	More    *More
}

// Listing - результат построения или раскрытия дерева.
type Listing struct {
	Items []Item
	// Comments - число комментариев в Items (без маркеров).
	Comments int
	// Skipped - запрошенные корни, которых нет в снапшоте (пропущены без ошибки).
	Skipped []string
	// Version - версия снапшота, с которого построена выдача.
	Version uint64
	// AnchorFound - для раскрытия: найден ли маркер-якорь в результате.
	AnchorFound bool
}
