// Package cursor хранит идентификатор самого свежего просмотренного поста
// и задаёт нижнюю границу для следующего запроса ленты.
package cursor

import (
	"strings"

	"github.com/maine/timeline_watch/internal/timeline"
)

// Cursor не потокобезопасен: им владеет цикл опроса и меняет только внутри одного тика.
type Cursor struct {
	value string
	set   bool
}

// New создаёт курсор в состоянии "не задан".
func New() *Cursor {
	return &Cursor{}
}

// Value возвращает текущее значение и признак того, что курсор задан.
func (c *Cursor) Value() (string, bool) {
	return c.value, c.set
}

// BoundsForNextFetch возвращает since_id для следующего запроса.
// На bootstrap границы нет: берётся последнее окно ленты целиком.
func (c *Cursor) BoundsForNextFetch(isBootstrap bool) (string, bool) {
	if isBootstrap || !c.set {
		return "", false
	}
	return c.value, true
}

// Advance сдвигает курсор на самый новый пост пачки. Лента отдаёт посты от новых к старым,
// поэтому берётся первый элемент с идентификатором. Курсор никогда не откатывается назад.
func (c *Cursor) Advance(batch []timeline.Post) {
	for _, post := range batch {
		if post.ID == "" {
			continue
		}
		if !c.set || CompareIDs(post.ID, c.value) > 0 {
			c.value = post.ID
			c.set = true
		}
		return
	}
}

// CompareIDs сравнивает идентификаторы ленты. Десятичные snowflake-идентификаторы сравниваются
// как числа произвольной длины, остальные - лексикографически.
func CompareIDs(a, b string) int {
	if isDecimal(a) && isDecimal(b) {
		a = strings.TrimLeft(a, "0")
		b = strings.TrimLeft(b, "0")
		if len(a) != len(b) {
			if len(a) < len(b) {
				return -1
			}
			return 1
		}
	}
	return strings.Compare(a, b)
}

func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
