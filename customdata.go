package stormpath

import (
	"context"
	"net/url"

	"github.com/pkg/errors"
)

func (c *Client) GetCustomData(ctx context.Context, resourceHref string) (CustomData, error) {
	data := CustomData{}
	if _, err := c.doGET(ctx, resourceHref+"/customData", nil, &data); err != nil {
		if IsNotFound(err) {
			return CustomData{}, nil
		}
		return nil, errors.Wrapf(err, "fetching custom data of %s", resourceHref)
	}
	return data, nil
}

func (c *Client) UpdateCustomData(ctx context.Context, resourceHref string, data CustomData) (CustomData, error) {
	out := CustomData{}
	if _, err := c.doPOST(ctx, resourceHref+"/customData", nil, data, &out); err != nil {
		return nil, errors.Wrapf(err, "saving custom data of %s", resourceHref)
	}
	return out, nil
}

func (c *Client) DeleteCustomDataField(ctx context.Context, resourceHref string, key string) error {
	if _, err := c.doDELETE(ctx, resourceHref+"/customData/"+url.PathEscape(key)); err != nil {
		if IsNotFound(err) {
			return nil
		}
		return errors.Wrapf(err, "deleting custom data field %q of %s", key, resourceHref)
	}
	return nil
}
