package feed

import "errors"

var (
	ErrNotAuthenticated     = errors.New("feed: not authenticated")
	ErrNotificationNotFound = errors.New("feed: notification not found")
)
