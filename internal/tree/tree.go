// Package tree строит плоскую выдачу из закэшированного леса комментариев.
//
// Обход в глубину идёт на явном стеке, поэтому глубина дерева не упирается в стек вызовов.
// Выдача - одна последовательность комментариев и маркеров "загрузить ещё" в порядке
// обхода, готовая к вставке в плоский список отображения.
package tree

import (
	"context"
	"errors"
	"fmt"

	"github.com/pribylovaa/comment-tree/internal/models"
	"github.com/pribylovaa/comment-tree/internal/sorting"
)

// ErrInvalidParams - параметры обхода вне допустимых границ.
var ErrInvalidParams = errors.New("invalid tree params")

// cancelCheckEvery - как часто обход проверяет отмену контекста.
const cancelCheckEvery = 256

// Reader - доступ на чтение к снапшоту леса.
type Reader interface {
	// Children возвращает детей узла в порядке добавления ("" - корни).
	Children(id string) []string
	Comment(id string) (*models.Comment, bool)
	Depth(id string) (int, bool)
	Version() uint64
}

// Params - параметры обхода.
//   - RootIDs == nil - все комментарии верхнего уровня; иначе явный набор корней;
//   - StartDepth - глубина, присваиваемая корням обхода;
//   - MaxDepth - максимальная глубина выдаваемого комментария;
//   - MaxNodes - максимум комментариев в выдаче (маркеры не считаются);
//   - ShowSpam - показывать спам (режим модератора);
//   - AnchorID - для раскрытия: id исходного маркера.
type Params struct {
	Mode       sorting.Mode
	RootIDs    []string
	StartDepth int
	MaxDepth   int
	MaxNodes   int
	ShowSpam   bool
	AnchorID   string

	// trueDepth - корни получают глубину из снапшота, окно MaxDepth-StartDepth
	// отсчитывается от неё.
	trueDepth bool
}

func (p Params) validate() error {
	switch {
	case p.MaxNodes <= 0:
		return fmt.Errorf("%w: max nodes must be > 0", ErrInvalidParams)
	case p.MaxDepth < 0:
		return fmt.Errorf("%w: max depth must be >= 0", ErrInvalidParams)
	case p.StartDepth < 0:
		return fmt.Errorf("%w: start depth must be >= 0", ErrInvalidParams)
	}

	return nil
}

// Build строит ограниченную по глубине и объёму выдачу.
//
// Правила:
//   - дети упорядочиваются политикой сортировки p.Mode;
//   - скрытый узел (удалён или спам без ShowSpam) попадает в выдачу надгробием,
//     только если у него есть видимые потомки;
//   - исчерпан бюджет MaxNodes - каждый открытый уровень закрывается маркером
//     с оставшимися id и рекурсивным числом пропущенных комментариев;
//   - у комментария на глубине MaxDepth с видимыми детьми вместо спуска ставится маркер;
//   - явные корни, которых нет в снапшоте, пропускаются и попадают в Listing.Skipped;
//   - явные корни с разными родителями обходятся группами, маркер каждой группы
//     несёт своего родителя.
//
// Снапшот не меняется; отмена ctx прерывает обход с ошибкой.
func Build(ctx context.Context, r Reader, p Params) (models.Listing, error) {
	if err := p.validate(); err != nil {
		return models.Listing{}, err
	}

	w := newWalker(ctx, r, p)
	for _, g := range w.roots() {
		if err := w.walk(g); err != nil {
			return models.Listing{}, err
		}
	}

	return w.out, nil
}

// Expand раскрывает маркер: обход с корнями p.RootIDs.
// Глубина корней берётся из снапшота, а не из p.StartDepth: окно
// MaxDepth-StartDepth откладывается от истинной глубины. Результат плоский: всё поддерево выкладывается в одну последовательность в пределах
// бюджета, остаток замещается свежими маркерами. AnchorFound сообщает, есть ли в
// результате элемент с id p.AnchorID.
func Expand(ctx context.Context, r Reader, p Params) (models.Listing, error) {
	if len(p.RootIDs) == 0 {
		return models.Listing{}, fmt.Errorf("%w: no children to expand", ErrInvalidParams)
	}

	p.trueDepth = true

	out, err := Build(ctx, r, p)
	if err != nil {
		return models.Listing{}, err
	}

	if p.AnchorID != "" {
		out.AnchorFound = containsID(out.Items, p.AnchorID)
	}

	return out, nil
}

// MoreID - детерминированный id маркера: родитель (или root) и первый пропущенный id.
func MoreID(parentID string, children []string) string {
	if parentID == "" {
		parentID = "root"
	}

	first := ""
	if len(children) > 0 {
		first = children[0]
	}

	return "more_" + parentID + "_" + first
}

func containsID(items []models.Item, id string) bool {
	for _, it := range items {
		switch it.Kind {
		case models.KindComment:
			if it.Comment != nil && it.Comment.ID == id {
				return true
			}
		case models.KindMore:
			if it.More != nil && it.More.ID == id {
				return true
			}
		}
	}

	return false
}
