package models

import "time"

// User представляет пользователя сервиса.
// ID — внутренний непрозрачный идентификатор, TgID — идентификатор в Telegram.
type User struct {
	ID        string    `json:"id"`
	TgID      int64     `json:"tg_id"`
	Username  string    `json:"username"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	RefCode   string    `json:"ref_code"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DisplayName возвращает имя для показа в списке друзей.
func (u *User) DisplayName() string {
	if u.FirstName != "" {
		if u.LastName != "" {
			return u.FirstName + " " + u.LastName
		}
		return u.FirstName
	}
	return u.Username
}
