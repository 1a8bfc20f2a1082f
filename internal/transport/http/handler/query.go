package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/moogar0880/problems"

	"github.com/sqlproxy/queryplane/internal/domain"
	domainerrors "github.com/sqlproxy/queryplane/internal/domain/errors"
	"github.com/sqlproxy/queryplane/internal/transport/http/contract"
)

// queryExecutor is the subset of *proxyapp.Pipeline the handler needs,
// narrowed to a local port the same way createUserExecutor narrows
// *user.CreateUserUseCase above.
type queryExecutor interface {
	Execute(ctx context.Context, req domain.Request) (domain.Response, error)
}

// QueryHandler serves the proxy's one request/response contract
// (spec.md §6), translating the wire-level JSON DTOs below to and from
// the transport-agnostic domain.Request/domain.Response the pipeline
// operates on.
type QueryHandler struct {
	pipeline queryExecutor
}

// NewQueryHandler creates a QueryHandler over pipeline.
func NewQueryHandler(pipeline queryExecutor) *QueryHandler {
	return &QueryHandler{pipeline: pipeline}
}

type queryRequestDTO struct {
	QueryText     string         `json:"query_text" validate:"required"`
	Params        map[string]any `json:"params,omitempty"`
	ServerAlias   string         `json:"server_alias,omitempty"`
	ServerGroup   string         `json:"server_group,omitempty"`
	TransactionID string         `json:"transaction_id,omitempty"`
	Options       struct {
		TimeoutSeconds  int  `json:"timeout_s,omitempty"`
		MaxRows         int  `json:"max_rows,omitempty"`
		IncludeMetadata bool `json:"include_metadata,omitempty"`
		StreamResults   bool `json:"stream_results,omitempty"`
	} `json:"options"`
	Principal struct {
		Username string `json:"username" validate:"required"`
		Role     string `json:"role,omitempty"`
		ClientIP string `json:"client_ip,omitempty"`
	} `json:"principal"`
}

func (d queryRequestDTO) toDomain() domain.Request {
	return domain.Request{
		QueryText:     d.QueryText,
		Params:        d.Params,
		ServerAlias:   d.ServerAlias,
		ServerGroup:   d.ServerGroup,
		TransactionID: d.TransactionID,
		Options: domain.RequestOptions{
			TimeoutSeconds:  d.Options.TimeoutSeconds,
			MaxRows:         d.Options.MaxRows,
			IncludeMetadata: d.Options.IncludeMetadata,
			StreamResults:   d.Options.StreamResults,
		},
		Principal: domain.Principal{
			Username: d.Principal.Username,
			Role:     d.Principal.Role,
			ClientIP: d.Principal.ClientIP,
		},
	}
}

type queryResponseDTO struct {
	Success bool   `json:"success"`
	Columns []string `json:"columns,omitempty"`
	Data    [][]any  `json:"data,omitempty"`
	Rowcount int     `json:"rowcount"`

	ExecutionTimeMs int64           `json:"execution_time_ms"`
	QueryType       domain.QueryType `json:"query_type"`

	Masked        bool     `json:"masked"`
	MaskedColumns []string `json:"masked_columns,omitempty"`

	Distribution *distributionInfoDTO `json:"distribution_info,omitempty"`
	Error        *responseErrorDTO    `json:"error,omitempty"`
}

type distributionInfoDTO struct {
	Strategy        domain.DistributionMode `json:"strategy"`
	ServersTotal    int                     `json:"servers_total"`
	ServersSucceeded int                    `json:"servers_succeeded"`
	ServersFailed   int                     `json:"servers_failed"`
	QueryID         string                  `json:"query_id"`
}

type responseErrorDTO struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	ServerAlias string `json:"server_alias,omitempty"`
}

func fromDomainResponse(resp domain.Response) queryResponseDTO {
	dto := queryResponseDTO{
		Success: resp.Success, Columns: resp.Columns, Data: resp.Data, Rowcount: resp.Rowcount,
		ExecutionTimeMs: resp.ExecutionTimeMs, QueryType: resp.QueryType,
		Masked: resp.Masked, MaskedColumns: resp.MaskedColumns,
	}
	if resp.Distribution != nil {
		dto.Distribution = &distributionInfoDTO{
			Strategy: resp.Distribution.Strategy, ServersTotal: resp.Distribution.ServersTotal,
			ServersSucceeded: resp.Distribution.ServersSucceeded, ServersFailed: resp.Distribution.ServersFailed,
			QueryID: resp.Distribution.QueryID,
		}
	}
	if resp.Error != nil {
		dto.Error = &responseErrorDTO{Code: resp.Error.Code, Message: resp.Error.Message, ServerAlias: resp.Error.ServerAlias}
	}
	return dto
}

// Execute handles POST /v1/query, the proxy's one external operation.
func (h *QueryHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var reqDTO queryRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		writeQueryError(w, domainerrors.NewDomain(domainerrors.CodeBadRequest, "malformed request body"))
		return
	}
	if validationErrs := contract.Validate(reqDTO); len(validationErrs) > 0 {
		writeQueryError(w, domainerrors.NewDomain(domainerrors.CodeValidationError, validationErrs[0].Field+" "+validationErrs[0].Message))
		return
	}

	resp, err := h.pipeline.Execute(r.Context(), reqDTO.toDomain())
	if err != nil {
		writeQueryError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, fromDomainResponse(resp))
}

// writeQueryError builds the error{code,message,server_alias?} envelope from
// spec.md §6, using moogar0880/problems only to resolve the HTTP status a
// DomainError code maps to (spec.md §7's closed ErrorKind taxonomy) rather
// than emitting a full RFC 7807 document — this surface's one response
// shape is already fixed by the logical contract.
func writeQueryError(w http.ResponseWriter, err error) {
	var domainErr *domainerrors.DomainError
	code := domainerrors.CodeInternalError
	message := err.Error()
	if errors.As(err, &domainErr) {
		code = domainErr.Code
		message = domainErr.Message
	}

	status := statusForCode(code)
	if message == "" {
		message = problems.NewStatusProblem(status).Title
	}
	writeJSON(w, status, queryResponseDTO{
		Success: false,
		Error:   &responseErrorDTO{Code: code, Message: message},
	})
}

// statusForCode maps the proxy's closed error code taxonomy (spec.md §7)
// to an HTTP status, the way problems.NewStatusProblem maps a status to
// its RFC 7807 title elsewhere in this package.
func statusForCode(code string) int {
	switch code {
	case domainerrors.CodeBadRequest, domainerrors.CodeValidationError, domainerrors.CodeValidationUnsupported:
		return http.StatusBadRequest
	case domainerrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case domainerrors.CodeForbidden, domainerrors.CodePolicyDeny:
		return http.StatusForbidden
	case domainerrors.CodeNotFound:
		return http.StatusNotFound
	case domainerrors.CodeConflict:
		return http.StatusConflict
	case domainerrors.CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case domainerrors.CodeTimeout, domainerrors.CodeQueryTimeout, domainerrors.CodePoolTimeout:
		return http.StatusGatewayTimeout
	case domainerrors.CodeRoutingError, domainerrors.CodePoolUnhealthy, domainerrors.CodePoolDrained:
		return http.StatusServiceUnavailable
	case domainerrors.CodeBackendError:
		return http.StatusBadGateway
	case domainerrors.CodeCancelled:
		return 499 // client closed request, matching the teacher's handling of context.Canceled
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
