package client

import (
	"encoding/json"

	"feedsync/internal/models"
)

// decodeListPayload extracts a normalized post list from a list response. The
// recognized shapes are a bare array, {"posts": [...]} and {"data": [...]},
// optionally with a "has_more"/"hasMore" flag alongside the wrapped forms.
// Anything else fails closed as a malformed response instead of guessing.
func decodeListPayload(body []byte) ([]models.Post, bool, bool, error) {
	var decoded interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, false, false, models.NewMalformedResponseError("list response is not valid JSON")
	}

	var rawList []interface{}
	hasMore := false
	hasMoreKnown := false

	switch v := decoded.(type) {
	case []interface{}:
		rawList = v
	case map[string]interface{}:
		list, ok := v["posts"].([]interface{})
		if !ok {
			list, ok = v["data"].([]interface{})
		}
		if !ok {
			return nil, false, false, models.NewMalformedResponseError("list response has no recognizable post array")
		}
		rawList = list
		if flag, ok := boolField(v, "has_more", "hasMore"); ok {
			hasMore = flag
			hasMoreKnown = true
		}
	default:
		return nil, false, false, models.NewMalformedResponseError("list response has an unrecognized shape")
	}

	posts := make([]models.Post, 0, len(rawList))
	for _, item := range rawList {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, false, false, models.NewMalformedResponseError("list entry is not an object")
		}
		post, err := models.PostFromRaw(obj)
		if err != nil {
			return nil, false, false, err
		}
		posts = append(posts, post)
	}
	return posts, hasMore, hasMoreKnown, nil
}

// decodePostPayload extracts a single normalized post from a response that is
// either a bare object or wrapped under "post"/"data".
func decodePostPayload(body []byte) (models.Post, error) {
	obj, err := unwrapObject(body, "post")
	if err != nil {
		return models.Post{}, err
	}
	return models.PostFromRaw(obj)
}

// decodeCommentPayload extracts a single normalized comment, wrapped under
// "comment"/"data" or bare.
func decodeCommentPayload(body []byte) (models.Comment, error) {
	obj, err := unwrapObject(body, "comment")
	if err != nil {
		return models.Comment{}, err
	}
	return models.CommentFromRaw(obj)
}

func unwrapObject(body []byte, wrapper string) (map[string]interface{}, error) {
	var decoded interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, models.NewMalformedResponseError("response is not valid JSON")
	}
	obj, ok := decoded.(map[string]interface{})
	if !ok {
		return nil, models.NewMalformedResponseError("response is not an object")
	}
	if inner, ok := obj[wrapper].(map[string]interface{}); ok {
		return inner, nil
	}
	if inner, ok := obj["data"].(map[string]interface{}); ok {
		return inner, nil
	}
	return obj, nil
}

func boolField(obj map[string]interface{}, names ...string) (bool, bool) {
	for _, name := range names {
		if v, ok := obj[name].(bool); ok {
			return v, true
		}
	}
	return false, false
}
