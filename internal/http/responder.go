package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/example/appointment-scheduler/internal/application"
	"github.com/example/appointment-scheduler/internal/appointment"
	"github.com/example/appointment-scheduler/internal/civiltime"
	"github.com/example/appointment-scheduler/internal/recurrence"
)

var (
	errBadRequestBody       = errors.New("無効なリクエスト形式です。")
	errInvalidAppointmentID = errors.New("無効な予約 ID です。")
	errMissingCredentials   = errors.New("認証情報を指定してください。")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	return responder{logger: defaultLogger(logger)}
}

func (r responder) writeJSON(c echo.Context, status int, payload any) error {
	if status == http.StatusNoContent || payload == nil {
		return c.NoContent(status)
	}
	return c.JSON(status, payload)
}

func (r responder) writeError(c echo.Context, status int, err error) error {
	message := localizedStatusMessage(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(c).WarnContext(c.Request().Context(), "request failed", "status", status, "error", err)
	}
	return r.writeJSON(c, status, errorResponse{Message: message})
}

func (r responder) handleServiceError(c echo.Context, err error) error {
	ctx := c.Request().Context()
	if err == nil {
		return r.writeError(c, http.StatusInternalServerError, errors.New("unknown error"))
	}

	var (
		vErr       *application.ValidationError
		overflow   *recurrence.OverflowError
		formatErr  *civiltime.FormatError
		transition *appointment.InvalidTransitionError
	)
	switch {
	case errors.Is(err, application.ErrUnauthorized):
		return r.writeJSON(c, http.StatusForbidden, errorResponse{
			ErrorCode: "AUTH_FORBIDDEN",
			Message:   "この操作を実行する権限がありません。",
		})
	case errors.Is(err, application.ErrNotFound):
		return r.writeJSON(c, http.StatusNotFound, errorResponse{Message: "指定されたリソースが見つかりません。"})
	case errors.As(err, &vErr):
		return r.writeJSON(c, http.StatusUnprocessableEntity, errorResponse{
			Message: "入力内容に誤りがあります。",
			Errors:  localizeValidationErrors(vErr),
		})
	case errors.As(err, &overflow):
		return r.writeJSON(c, http.StatusUnprocessableEntity, errorResponse{
			ErrorCode: "TOO_MANY_OCCURRENCES",
			Message:   "繰り返し回数が上限を超えています。",
			Errors:    map[string]string{"pattern": err.Error()},
		})
	case errors.As(err, &formatErr):
		return r.writeJSON(c, http.StatusUnprocessableEntity, errorResponse{
			Message: "日時の形式が正しくありません。",
			Errors:  map[string]string{"value": formatErr.Value},
		})
	case errors.As(err, &transition):
		return r.writeJSON(c, http.StatusConflict, errorResponse{
			ErrorCode: "INVALID_TRANSITION",
			Message:   "現在の状態からは変更できません。",
			Errors:    map[string]string{"status": string(transition.From) + " -> " + string(transition.To)},
		})
	default:
		r.loggerFor(c).ErrorContext(ctx, "request failed", "error", err, "error_kind", application.ErrorKind(err))
		return r.writeJSON(c, http.StatusInternalServerError, errorResponse{Message: "サーバー内部でエラーが発生しました。"})
	}
}

func (r responder) loggerFor(c echo.Context) *slog.Logger {
	if logger := LoggerFromContext(c.Request().Context()); logger != nil {
		return logger
	}
	return r.logger
}

func localizedStatusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "リクエスト内容が正しくありません。"
	case http.StatusUnauthorized:
		return "認証が必要です。"
	case http.StatusForbidden:
		return "この操作を実行する権限がありません。"
	case http.StatusNotFound:
		return "指定されたリソースが見つかりません。"
	case http.StatusMethodNotAllowed:
		return "許可されていないメソッドです。"
	case http.StatusConflict:
		return "要求はリソースの現在の状態と競合しています。"
	case http.StatusUnprocessableEntity:
		return "入力内容に誤りがあります。"
	default:
		return "サーバー内部でエラーが発生しました。"
	}
}

func localizeValidationErrors(vErr *application.ValidationError) map[string]string {
	if vErr == nil || len(vErr.FieldErrors) == 0 {
		return nil
	}

	translated := make(map[string]string, len(vErr.FieldErrors))
	for field, msg := range vErr.FieldErrors {
		translated[field] = translateValidationMessage(msg)
	}
	return translated
}

func translateValidationMessage(message string) string {
	switch message {
	case "client is required":
		return "顧客は必須です。"
	case "employee is required":
		return "担当者は必須です。"
	case "employee not found":
		return "指定された担当者は存在しません。"
	case "service is required":
		return "サービスは必須です。"
	case "service not found":
		return "指定されたサービスは存在しません。"
	case "at least one service is required":
		return "少なくとも 1 つのサービスを指定してください。"
	case "service IDs must not be blank":
		return "サービス ID を空にすることはできません。"
	case "start is required":
		return "開始日時は必須です。"
	case "end must be after start":
		return "終了日時は開始日時より後である必要があります。"
	case "range end must be after range start":
		return "期間の終了は開始より後である必要があります。"
	case "appointment duration must be positive":
		return "予約時間は正の長さで指定してください。"
	case "an explicit end is only allowed for a single service":
		return "終了日時は単一サービスの場合のみ指定できます。"
	case "advance payment must not be negative":
		return "前払い金は 0 以上で指定してください。"
	case "custom price must not be negative":
		return "個別価格は 0 以上で指定してください。"
	case "item name is required":
		return "追加項目の名前は必須です。"
	case "item price must not be negative":
		return "追加項目の価格は 0 以上で指定してください。"
	case "a cancelled appointment cannot be rescheduled":
		return "キャンセル済みの予約は日時を変更できません。"
	case "a cancelled appointment cannot be confirmed by the client":
		return "キャンセル済みの予約は顧客確認できません。"
	case "unknown status":
		return "不明なステータスです。"
	case "not a cancellation status":
		return "キャンセル用のステータスを指定してください。"
	case "appointment ID is required":
		return "予約 ID は必須です。"
	case "at least one appointment ID is required":
		return "少なくとも 1 件の予約 ID を指定してください。"
	case msgBadTimestamp:
		return "日時は YYYY-MM-DDTHH:MM:SS 形式で指定してください。"
	case msgBadDate:
		return "日付は YYYY-MM-DD 形式で指定してください。"
	case "is required":
		return "必須項目です。"
	case "has an invalid value":
		return "値が不正です。"
	default:
		return message
	}
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
}
