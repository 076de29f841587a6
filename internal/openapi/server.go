package openapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	strictnethttp "github.com/oapi-codegen/runtime/strictmiddleware/nethttp"
)

// ServerInterface represents all server handlers.
type ServerInterface interface {
	// Issue an authorization URL or exchange an authorization code
	// (POST /functions/x-oauth)
	XOAuth(w http.ResponseWriter, r *http.Request, params XOAuthParams)
	// Read profile or timeline data of the linked X account
	// (POST /functions/x-api)
	XAPI(w http.ResponseWriter, r *http.Request)
}

type MiddlewareFunc func(http.Handler) http.Handler

// ServerInterfaceWrapper converts contexts to parameters.
type ServerInterfaceWrapper struct {
	Handler            ServerInterface
	HandlerMiddlewares []MiddlewareFunc
	ErrorHandlerFunc   func(w http.ResponseWriter, r *http.Request, err error)
}

func (siw *ServerInterfaceWrapper) XOAuth(w http.ResponseWriter, r *http.Request) {
	var params XOAuthParams

	if origin := r.Header.Get("Origin"); origin != "" {
		params.Origin = &origin
	}

	handler := http.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.XOAuth(w, r, params)
	}))

	for _, middleware := range siw.HandlerMiddlewares {
		handler = middleware(handler)
	}

	handler.ServeHTTP(w, r)
}

func (siw *ServerInterfaceWrapper) XAPI(w http.ResponseWriter, r *http.Request) {
	handler := http.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.XAPI(w, r)
	}))

	for _, middleware := range siw.HandlerMiddlewares {
		handler = middleware(handler)
	}

	handler.ServeHTTP(w, r)
}

type StdHTTPServerOptions struct {
	BaseURL          string
	BaseRouter       *http.ServeMux
	Middlewares      []MiddlewareFunc
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// Handler creates http.Handler with routing matching OpenAPI spec.
func Handler(si ServerInterface) http.Handler {
	return HandlerWithOptions(si, StdHTTPServerOptions{})
}

// HandlerWithOptions creates http.Handler with additional options
func HandlerWithOptions(si ServerInterface, options StdHTTPServerOptions) http.Handler {
	m := options.BaseRouter
	if m == nil {
		m = http.NewServeMux()
	}

	if options.ErrorHandlerFunc == nil {
		options.ErrorHandlerFunc = func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}

	wrapper := ServerInterfaceWrapper{
		Handler:            si,
		HandlerMiddlewares: options.Middlewares,
		ErrorHandlerFunc:   options.ErrorHandlerFunc,
	}

	m.HandleFunc("POST "+options.BaseURL+"/functions/x-oauth", wrapper.XOAuth)
	m.HandleFunc("POST "+options.BaseURL+"/functions/x-api", wrapper.XAPI)

	return m
}

type XOAuthRequestObject struct {
	Params XOAuthParams
	Body   *XOAuthJSONRequestBody
}

type XOAuthResponseObject interface {
	VisitXOAuthResponse(w http.ResponseWriter) error
}

type XOAuthAuthURL200JSONResponse AuthURLResponse

func (response XOAuthAuthURL200JSONResponse) VisitXOAuthResponse(w http.ResponseWriter) error {
	return writeJSON(w, http.StatusOK, response)
}

type XOAuthToken200JSONResponse TokenResponse

func (response XOAuthToken200JSONResponse) VisitXOAuthResponse(w http.ResponseWriter) error {
	return writeJSON(w, http.StatusOK, response)
}

type XOAuthdefaultJSONResponse struct {
	Body       ErrorModel
	StatusCode int
}

func (response XOAuthdefaultJSONResponse) VisitXOAuthResponse(w http.ResponseWriter) error {
	return writeJSON(w, response.StatusCode, response.Body)
}

type XAPIRequestObject struct {
	Body *XAPIJSONRequestBody
}

type XAPIResponseObject interface {
	VisitXAPIResponse(w http.ResponseWriter) error
}

type XAPIUser200JSONResponse UserResponse

func (response XAPIUser200JSONResponse) VisitXAPIResponse(w http.ResponseWriter) error {
	return writeJSON(w, http.StatusOK, response)
}

type XAPITweets200JSONResponse TweetsResponse

func (response XAPITweets200JSONResponse) VisitXAPIResponse(w http.ResponseWriter) error {
	return writeJSON(w, http.StatusOK, response)
}

type XAPIdefaultJSONResponse struct {
	Body       ErrorModel
	StatusCode int
}

func (response XAPIdefaultJSONResponse) VisitXAPIResponse(w http.ResponseWriter) error {
	return writeJSON(w, response.StatusCode, response.Body)
}

// StrictServerInterface represents all server handlers.
type StrictServerInterface interface {
	XOAuth(ctx context.Context, request XOAuthRequestObject) (XOAuthResponseObject, error)
	XAPI(ctx context.Context, request XAPIRequestObject) (XAPIResponseObject, error)
}

type StrictHandlerFunc = strictnethttp.StrictHTTPHandlerFunc
type StrictMiddlewareFunc = strictnethttp.StrictHTTPMiddlewareFunc

type StrictHTTPServerOptions struct {
	RequestErrorHandlerFunc  func(w http.ResponseWriter, r *http.Request, err error)
	ResponseErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

func NewStrictHandler(ssi StrictServerInterface, middlewares []StrictMiddlewareFunc) ServerInterface {
	return NewStrictHandlerWithOptions(ssi, middlewares, StrictHTTPServerOptions{
		RequestErrorHandlerFunc: func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		},
		ResponseErrorHandlerFunc: func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		},
	})
}

func NewStrictHandlerWithOptions(ssi StrictServerInterface, middlewares []StrictMiddlewareFunc, options StrictHTTPServerOptions) ServerInterface {
	return &strictHandler{ssi: ssi, middlewares: middlewares, options: options}
}

type strictHandler struct {
	ssi         StrictServerInterface
	middlewares []StrictMiddlewareFunc
	options     StrictHTTPServerOptions
}

// XOAuth operation middleware
func (sh *strictHandler) XOAuth(w http.ResponseWriter, r *http.Request, params XOAuthParams) {
	var request XOAuthRequestObject

	request.Params = params

	var body XOAuthJSONRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		sh.options.RequestErrorHandlerFunc(w, r, fmt.Errorf("can't decode JSON body: %w", err))
		return
	}
	request.Body = &body

	handler := func(ctx context.Context, w http.ResponseWriter, r *http.Request, request interface{}) (interface{}, error) {
		return sh.ssi.XOAuth(ctx, request.(XOAuthRequestObject))
	}
	for _, middleware := range sh.middlewares {
		handler = middleware(handler, "XOAuth")
	}

	response, err := handler(r.Context(), w, r, request)

	if err != nil {
		sh.options.ResponseErrorHandlerFunc(w, r, err)
	} else if validResponse, ok := response.(XOAuthResponseObject); ok {
		if err := validResponse.VisitXOAuthResponse(w); err != nil {
			sh.options.ResponseErrorHandlerFunc(w, r, err)
		}
	} else if response != nil {
		sh.options.ResponseErrorHandlerFunc(w, r, fmt.Errorf("unexpected response type: %T", response))
	}
}

// XAPI operation middleware
func (sh *strictHandler) XAPI(w http.ResponseWriter, r *http.Request) {
	var request XAPIRequestObject

	var body XAPIJSONRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		sh.options.RequestErrorHandlerFunc(w, r, fmt.Errorf("can't decode JSON body: %w", err))
		return
	}
	request.Body = &body

	handler := func(ctx context.Context, w http.ResponseWriter, r *http.Request, request interface{}) (interface{}, error) {
		return sh.ssi.XAPI(ctx, request.(XAPIRequestObject))
	}
	for _, middleware := range sh.middlewares {
		handler = middleware(handler, "XAPI")
	}

	response, err := handler(r.Context(), w, r, request)

	if err != nil {
		sh.options.ResponseErrorHandlerFunc(w, r, err)
	} else if validResponse, ok := response.(XAPIResponseObject); ok {
		if err := validResponse.VisitXAPIResponse(w); err != nil {
			sh.options.ResponseErrorHandlerFunc(w, r, err)
		}
	} else if response != nil {
		sh.options.ResponseErrorHandlerFunc(w, r, fmt.Errorf("unexpected response type: %T", response))
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	return json.NewEncoder(w).Encode(body)
}
