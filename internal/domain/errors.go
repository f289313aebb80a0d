package domain

import "errors"

// ErrInvalidJobSpec — JobSpec не прошёл структурную валидацию.
// Единственная ошибка, которую видит вызывающий Submit.
var ErrInvalidJobSpec = errors.New("invalid job spec")
