package governance

import (
	"net/url"
	"strings"
)

const (
	pathProposals    = "/proposals"
	pathProposal     = "/proposal"
	pathWrapping     = "/wrapping"
	pathSubmitUpdate = "/submit/update"

	queryID         = "id"
	queryProposalID = "proposalId"
	queryCompleted  = "completed"
	queryNew        = "new"
	queryNewUpdate  = "newUpdate"
	queryTrue       = "true"
)

// Navigator moves the user between views.
type Navigator interface {
	CurrentQuery() string
	Navigate(location string, replace bool)
}

type queryParam struct {
	key   string
	value string
}

// orderedQuery keeps parameters in insertion order, unlike url.Values.Encode.
type orderedQuery []queryParam

func parseOrderedQuery(raw string) orderedQuery {
	raw = strings.TrimPrefix(raw, "?")
	if raw == "" {
		return nil
	}
	params := make(orderedQuery, 0, strings.Count(raw, "&")+1)
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			key = rawKey
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			value = rawValue
		}
		params = append(params, queryParam{key: key, value: value})
	}
	return params
}

func (query orderedQuery) set(key string, value string) orderedQuery {
	for index := range query {
		if query[index].key == key {
			query[index].value = value
			return query
		}
	}
	return append(query, queryParam{key: key, value: value})
}

func (query orderedQuery) encode() string {
	if len(query) == 0 {
		return ""
	}
	parts := make([]string, 0, len(query))
	for _, param := range query {
		parts = append(parts, url.QueryEscape(param.key)+"="+url.QueryEscape(param.value))
	}
	return strings.Join(parts, "&")
}

func withQuery(path string, query orderedQuery) string {
	encoded := query.encode()
	if encoded == "" {
		return path
	}
	return path + "?" + encoded
}

// ProposalsLocation is the proposal list view.
func ProposalsLocation() string {
	return pathProposals
}

// ProposalLocation is the proposal detail view.
func ProposalLocation(proposalID string) string {
	return withQuery(pathProposal, orderedQuery{{key: queryID, value: proposalID}})
}

// WrappingLocation keeps the current query and marks the wrapping flow completed.
func WrappingLocation(currentQuery string) string {
	return withQuery(pathWrapping, parseOrderedQuery(currentQuery).set(queryCompleted, queryTrue))
}

// SubmitUpdateLocation is the grant update form. updateID is omitted when empty.
func SubmitUpdateLocation(updateID string, proposalID string) string {
	query := orderedQuery{}
	if updateID != "" {
		query = append(query, queryParam{key: queryID, value: updateID})
	}
	query = append(query, queryParam{key: queryProposalID, value: proposalID})
	return withQuery(pathSubmitUpdate, query)
}
