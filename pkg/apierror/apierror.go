// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package apierror defines the normalized error taxonomy for the Data API.
//
// Every failure that crosses a package boundary in fmmcp is a *Descriptor.
// Remote failures are resolved exactly once, in the transport client, from
// the pair (HTTP status, Data API message code) and then propagated unchanged.
//
// # Resolution
//
// Two finite tables drive resolution: one keyed by HTTP status and one keyed
// by the Data API's own message codes. The domain table always wins:
//
//	d := apierror.Resolve(401, apierror.CodePtr(401))
//	// d.Code == NoRecordsMatch, not SessionExpired
//
// The Data API reports "no records match the request" with message code 401,
// which is also the HTTP status used for an expired token. Checking the
// domain table first is what tells the two apart.
//
// # Retryability
//
// Retryable is a property of the resolved code, never of the call site.
// Expired sessions, rate limiting and unavailable upstreams are retryable;
// validation, not-found and permission failures are not.
package apierror

import (
	"errors"
	"fmt"
)

// Category groups codes by the kind of recovery a caller can attempt.
type Category string

const (
	CategoryAuth       Category = "auth"
	CategorySession    Category = "session"
	CategoryRequest    Category = "request"
	CategoryNotFound   Category = "not_found"
	CategoryPermission Category = "permission"
	CategoryRateLimit  Category = "rate_limit"
	CategoryServer     Category = "server"
	CategoryResult     Category = "result"
	CategoryInternal   Category = "internal"
)

// Code is a stable internal error code. Ranges are partitioned by category.
type Code int

// Authentication failures.
const (
	InvalidCredentials Code = 1001
	AccountLocked      Code = 1002
)

// Session lifecycle failures.
const (
	NoSession      Code = 1101
	SessionExpired Code = 1102
)

// Request and validation failures.
const (
	BadRequest        Code = 1201
	EmptyFindCriteria Code = 1202
	Conflict          Code = 1203
	PayloadTooLarge   Code = 1204
)

// Resource not found failures.
const (
	NotFound      Code = 1301
	FileMissing   Code = 1302
	RecordMissing Code = 1303
	FieldMissing  Code = 1304
	LayoutMissing Code = 1305
)

// Permission failures.
const (
	Forbidden              Code = 1401
	InsufficientPrivileges Code = 1402
)

// Rate limiting.
const (
	RateLimited Code = 1501
)

// Server side and upstream failures.
const (
	ServerError        Code = 1601
	BadGateway         Code = 1602
	ServiceUnavailable Code = 1603
	GatewayTimeout     Code = 1604
	UnableToOpenFile   Code = 1605
)

// Result conditions that are not failures from the caller's point of view.
const (
	NoRecordsMatch Code = 1701
)

// Internal failures.
const (
	Unknown         Code = 1901
	InvalidResponse Code = 1902
	Cancelled       Code = 1903
)

type entry struct {
	code      Code
	category  Category
	message   string
	retryable bool
}

var catalog = map[Code]entry{
	InvalidCredentials:     {InvalidCredentials, CategoryAuth, "Invalid username or password", false},
	AccountLocked:          {AccountLocked, CategoryAuth, "Account is locked after too many failed login attempts", false},
	NoSession:              {NoSession, CategorySession, "No active session. Call fm_login first", false},
	SessionExpired:         {SessionExpired, CategorySession, "Session expired or token is invalid. Log in again", true},
	BadRequest:             {BadRequest, CategoryRequest, "Malformed or invalid request", false},
	EmptyFindCriteria:      {EmptyFindCriteria, CategoryRequest, "Find criteria are empty", false},
	Conflict:               {Conflict, CategoryRequest, "Request conflicts with the current state of the resource", false},
	PayloadTooLarge:        {PayloadTooLarge, CategoryRequest, "Request payload is too large", false},
	NotFound:               {NotFound, CategoryNotFound, "Resource not found", false},
	FileMissing:            {FileMissing, CategoryNotFound, "Database file is missing", false},
	RecordMissing:          {RecordMissing, CategoryNotFound, "Record is missing", false},
	FieldMissing:           {FieldMissing, CategoryNotFound, "Field is missing", false},
	LayoutMissing:          {LayoutMissing, CategoryNotFound, "Layout is missing", false},
	Forbidden:              {Forbidden, CategoryPermission, "Access to this resource is forbidden", false},
	InsufficientPrivileges: {InsufficientPrivileges, CategoryPermission, "Insufficient privileges for this operation", false},
	RateLimited:            {RateLimited, CategoryRateLimit, "Too many requests. Slow down and retry", true},
	ServerError:            {ServerError, CategoryServer, "Internal server error on the remote host", false},
	BadGateway:             {BadGateway, CategoryServer, "Bad gateway between proxy and Data API", true},
	ServiceUnavailable:     {ServiceUnavailable, CategoryServer, "Server unavailable", true},
	GatewayTimeout:         {GatewayTimeout, CategoryServer, "Request timed out", true},
	UnableToOpenFile:       {UnableToOpenFile, CategoryServer, "Unable to open the database file", false},
	NoRecordsMatch:         {NoRecordsMatch, CategoryResult, "No records match the request", false},
	Unknown:                {Unknown, CategoryInternal, "Unknown error", false},
	InvalidResponse:        {InvalidResponse, CategoryInternal, "Unexpected response from the Data API", false},
	Cancelled:              {Cancelled, CategoryInternal, "Request was cancelled", false},
}

// httpStatusTable maps generic HTTP statuses to internal codes.
var httpStatusTable = map[int]Code{
	400: BadRequest,
	401: SessionExpired,
	403: Forbidden,
	404: NotFound,
	409: Conflict,
	413: PayloadTooLarge,
	429: RateLimited,
	500: ServerError,
	502: BadGateway,
	503: ServiceUnavailable,
	504: GatewayTimeout,
}

// domainTable maps Data API message codes to internal codes.
var domainTable = map[int]Code{
	9:   InsufficientPrivileges,
	100: FileMissing,
	101: RecordMissing,
	102: FieldMissing,
	105: LayoutMissing,
	212: InvalidCredentials,
	214: AccountLocked,
	400: EmptyFindCriteria,
	401: NoRecordsMatch,
	802: UnableToOpenFile,
	952: SessionExpired,
}

// Descriptor is the normalized representation of any failure.
type Descriptor struct {
	Code       Code     `json:"code"`
	Category   Category `json:"category"`
	Message    string   `json:"message"`
	Detail     string   `json:"detail,omitempty"`
	RemoteCode *int     `json:"remoteCode,omitempty"`
	HTTPStatus int      `json:"httpStatus,omitempty"`
	Retryable  bool     `json:"retryable"`
}

// Error implements the error interface.
func (d *Descriptor) Error() string {
	if d.Detail != "" {
		return fmt.Sprintf("%s (%d): %s", d.Message, d.Code, d.Detail)
	}
	return fmt.Sprintf("%s (%d)", d.Message, d.Code)
}

// WithDetail returns a copy of d carrying detail.
func (d *Descriptor) WithDetail(detail string) *Descriptor {
	c := *d
	c.Detail = detail
	return &c
}

// New builds a descriptor for a known code. Unlisted codes resolve to Unknown.
func New(code Code, detail string) *Descriptor {
	e, ok := catalog[code]
	if !ok {
		e = catalog[Unknown]
	}
	return &Descriptor{
		Code:      e.code,
		Category:  e.category,
		Message:   e.message,
		Detail:    detail,
		Retryable: e.retryable,
	}
}

// Resolve converts an HTTP status and an optional Data API message code into
// a descriptor. The domain code is consulted first, then the HTTP status;
// when neither table has an entry the result is Unknown.
func Resolve(httpStatus int, domainCode *int) *Descriptor {
	var d *Descriptor
	if domainCode != nil {
		if code, ok := domainTable[*domainCode]; ok {
			d = New(code, "")
		}
	}
	if d == nil {
		if code, ok := httpStatusTable[httpStatus]; ok {
			d = New(code, "")
		}
	}
	if d == nil {
		d = New(Unknown, "")
	}
	d.HTTPStatus = httpStatus
	if domainCode != nil {
		rc := *domainCode
		d.RemoteCode = &rc
	}
	return d
}

// IsRetryable reports the stored retry flag for a remote code, looking in the
// domain table first and the HTTP status table second. Codes found in neither
// table are not retryable.
func IsRetryable(code int) bool {
	if c, ok := domainTable[code]; ok {
		return catalog[c].retryable
	}
	if c, ok := httpStatusTable[code]; ok {
		return catalog[c].retryable
	}
	return false
}

// CodePtr is a convenience for passing literal domain codes to Resolve.
func CodePtr(code int) *int {
	return &code
}

// As extracts a *Descriptor from err's chain.
func As(err error) (*Descriptor, bool) {
	var d *Descriptor
	if errors.As(err, &d) {
		return d, true
	}
	return nil, false
}

// IsCode reports whether err is a descriptor with the given code.
func IsCode(err error, code Code) bool {
	d, ok := As(err)
	return ok && d.Code == code
}

// IsSessionExpired reports whether err means the session token is no longer valid.
func IsSessionExpired(err error) bool {
	return IsCode(err, SessionExpired)
}

// IsNoRecords reports whether err is the "no records match" result.
func IsNoRecords(err error) bool {
	return IsCode(err, NoRecordsMatch)
}

// Convenience constructors for failures raised locally rather than resolved
// from a remote response.

func NoActiveSession() *Descriptor { return New(NoSession, "") }

func InvalidInput(detail string) *Descriptor { return New(BadRequest, detail) }

func Unavailable(detail string) *Descriptor { return New(ServiceUnavailable, detail) }

func Timeout(detail string) *Descriptor { return New(GatewayTimeout, detail) }

func Internal(detail string) *Descriptor { return New(Unknown, detail) }
