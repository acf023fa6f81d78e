package service

import "github.com/airdock-app/airdock/daemon/store"

// ListHistory returns a cursor-paginated page of past and live sessions.
func (s *Service) ListHistory(filter store.HistoryFilter) (store.HistoryPage, error) {
	return s.st.ListHistory(filter)
}

// ClearHistory deletes all sessions, or only those older than olderThanDays (clamped 1..365).
func (s *Service) ClearHistory(all bool, olderThanDays int) error {
	return s.st.ClearHistory(all, olderThanDays, s.now().UnixMilli())
}
