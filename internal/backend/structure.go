package backend

import (
	"net/http"

	"github.com/sheetbase/sheetbase/pkg/transport"
)

// applyStructure applies every request to a copy of the store's tabs and
// swaps the copy in only when all of them succeed.
func (e *Engine) applyStructure(s *store, requests []transport.StructuralRequest) error {
	tabs := make([]*tab, len(s.tabs))
	for i, t := range s.tabs {
		tabs[i] = t.clone()
	}
	staged := &store{id: s.id, title: s.title, tabs: tabs}
	nextTab := e.nextTab

	for i, req := range requests {
		switch {
		case req.AddTab != nil:
			title := req.AddTab.Title
			if title == "" {
				return transport.Status(http.StatusBadRequest, "request %d: tab title must not be empty", i)
			}
			if staged.tabByTitle(title) != nil {
				return transport.Status(http.StatusBadRequest,
					"request %d: A sheet with the name %q already exists", i, title)
			}
			staged.tabs = append(staged.tabs, &tab{id: nextTab, title: title})
			nextTab++

		case req.InsertColumns != nil:
			span := req.InsertColumns
			t, err := staged.spanTab(i, span)
			if err != nil {
				return err
			}
			t.insertColumns(span.Index, span.Count)

		case req.DeleteColumns != nil:
			span := req.DeleteColumns
			t, err := staged.spanTab(i, span)
			if err != nil {
				return err
			}
			t.deleteColumns(span.Index, span.Count)

		case req.UpdateCell != nil:
			uc := req.UpdateCell
			t := staged.tabByID(uc.TabID)
			if t == nil {
				return transport.Status(http.StatusBadRequest, "request %d: No grid with id: %d", i, uc.TabID)
			}
			if uc.Row < 0 || uc.Column < 0 {
				return transport.Status(http.StatusBadRequest, "request %d: negative cell coordinates", i)
			}
			t.set(uc.Row, uc.Column, normalize(uc.Value))
			t.compact()

		case req.RenameTab != nil:
			rt := req.RenameTab
			t := staged.tabByID(rt.TabID)
			if t == nil {
				return transport.Status(http.StatusBadRequest, "request %d: No grid with id: %d", i, rt.TabID)
			}
			if rt.Title == "" {
				return transport.Status(http.StatusBadRequest, "request %d: tab title must not be empty", i)
			}
			if other := staged.tabByTitle(rt.Title); other != nil && other != t {
				return transport.Status(http.StatusBadRequest,
					"request %d: A sheet with the name %q already exists", i, rt.Title)
			}
			t.title = rt.Title

		default:
			return transport.Status(http.StatusBadRequest, "request %d: no operation set", i)
		}
	}

	s.tabs = staged.tabs
	e.nextTab = nextTab
	return nil
}

func (s *store) spanTab(i int, span *transport.ColumnSpan) (*tab, error) {
	t := s.tabByID(span.TabID)
	if t == nil {
		return nil, transport.Status(http.StatusBadRequest, "request %d: No grid with id: %d", i, span.TabID)
	}
	if span.Index < 0 || span.Count <= 0 {
		return nil, transport.Status(http.StatusBadRequest, "request %d: invalid column span %d+%d", i, span.Index, span.Count)
	}
	return t, nil
}
