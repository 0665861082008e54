package main

const (
	MsgAlive = "✅ Catascan aktif. Gunakan POST /predict"

	MsgPayloadTooLarge = "ukuran gambar melebihi batas"
	MsgNotFound        = "data tidak ditemukan"
	MsgInvalidUserID   = "user_id tidak valid"
	MsgInvalidID       = "id tidak valid"
	MsgBusy            = "server sedang sibuk, coba lagi"
	MsgRateLimited     = "terlalu banyak permintaan, coba lagi nanti"
)

// Error codes returned next to the message in every error payload.
const (
	CodeMissingFields   = "missing_fields"
	CodePayloadTooLarge = "payload_too_large"
	CodeInvalidRequest  = "invalid_request"
	CodeNotFound        = "not_found"
	CodeUnavailable     = "session_error"
	CodeRateLimited     = "rate_limited"
	CodeUploadError     = "upload_error"
	CodeProcessingError = "processing_error"
	CodePersistError    = "persist_error"
	CodeInternal        = "internal_error"
)
