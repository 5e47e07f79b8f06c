package llm

import (
	"context"
	"sync"
)

type scriptedClient struct {
	mu        sync.Mutex
	responses []Response
	errs      []error
	requests  []Request
}

func (c *scriptedClient) Complete(_ context.Context, req Request) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		if err != nil {
			return Response{}, err
		}
	}
	if len(c.responses) == 0 {
		return Response{}, nil
	}
	resp := c.responses[0]
	c.responses = c.responses[1:]
	return resp, nil
}
