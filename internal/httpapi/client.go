package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/electroshop/internal/cart"
	"github.com/MarkoPoloResearchLab/electroshop/internal/order"
)

const defaultClientTimeout = 5 * time.Second

// InventoryClient implements cart.Reservations against the inventory API.
type InventoryClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewInventoryClient builds a client for the inventory service.
func NewInventoryClient(baseURL string) *InventoryClient {
	return &InventoryClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultClientTimeout},
	}
}

type reservationReply struct {
	ReservationID    string `json:"reservationId"`
	Quantity         int64  `json:"quantity"`
	ExpiresAtUnixUTC int64  `json:"expiresAtUnixUtc"`
}

func (client *InventoryClient) Reserve(ctx context.Context, productID string, userID string, quantity int64) (int64, error) {
	request := map[string]any{"productId": productID, "userId": userID, "quantity": quantity}
	var reply reservationReply
	err := client.doJSON(ctx, http.MethodPost, client.baseURL+"/api/reservations", request, http.StatusCreated, &reply)
	if err != nil {
		return 0, err
	}
	return reply.ExpiresAtUnixUTC, nil
}

func (client *InventoryClient) Update(ctx context.Context, userID string, productID string, quantity int64) (int64, error) {
	url := fmt.Sprintf("%s/api/reservations/%s/%s", client.baseURL, userID, productID)
	var reply reservationReply
	err := client.doJSON(ctx, http.MethodPatch, url, map[string]any{"quantity": quantity}, http.StatusOK, &reply)
	if err != nil {
		return 0, err
	}
	return reply.ExpiresAtUnixUTC, nil
}

func (client *InventoryClient) Cancel(ctx context.Context, userID string, productID string) error {
	url := fmt.Sprintf("%s/api/reservations/%s/%s", client.baseURL, userID, productID)
	return client.doJSON(ctx, http.MethodDelete, url, nil, http.StatusNoContent, nil)
}

func (client *InventoryClient) doJSON(ctx context.Context, method string, url string, payload any, wantStatus int, out any) error {
	var body *bytes.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	} else {
		body = bytes.NewReader(nil)
	}
	request, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")
	response, err := client.httpClient.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	if response.StatusCode != wantStatus {
		var failure struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(response.Body).Decode(&failure)
		return fmt.Errorf("inventory %s %s: status %d: %s", method, url, response.StatusCode, failure.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(response.Body).Decode(out)
}

// CatalogClient implements cart.Catalog against the product catalog API.
type CatalogClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewCatalogClient builds a client for the catalog service.
func NewCatalogClient(baseURL string) *CatalogClient {
	return &CatalogClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultClientTimeout},
	}
}

func (client *CatalogClient) Product(ctx context.Context, productID string) (cart.Product, error) {
	url := fmt.Sprintf("%s/api/products/%s", client.baseURL, productID)
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return cart.Product{}, err
	}
	response, err := client.httpClient.Do(request)
	if err != nil {
		return cart.Product{}, err
	}
	defer response.Body.Close()
	if response.StatusCode == http.StatusNotFound {
		return cart.Product{}, cart.ErrUnknownProduct
	}
	if response.StatusCode != http.StatusOK {
		return cart.Product{}, fmt.Errorf("catalog %s: status %d", url, response.StatusCode)
	}
	var reply struct {
		ProductID  string `json:"productId"`
		Name       string `json:"name"`
		PriceCents int64  `json:"priceCents"`
	}
	if err := json.NewDecoder(response.Body).Decode(&reply); err != nil {
		return cart.Product{}, err
	}
	return cart.Product{ProductID: reply.ProductID, Name: reply.Name, PriceCents: reply.PriceCents}, nil
}

// AddressBookClient implements order.AddressBook against the user service.
type AddressBookClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAddressBookClient builds a client for the user service address API.
func NewAddressBookClient(baseURL string) *AddressBookClient {
	return &AddressBookClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultClientTimeout},
	}
}

func (client *AddressBookClient) Address(ctx context.Context, userID string, addressID string) (order.AddressSnapshot, error) {
	url := fmt.Sprintf("%s/api/users/%s/addresses/%s", client.baseURL, userID, addressID)
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return order.AddressSnapshot{}, err
	}
	response, err := client.httpClient.Do(request)
	if err != nil {
		return order.AddressSnapshot{}, err
	}
	defer response.Body.Close()
	if response.StatusCode == http.StatusNotFound {
		return order.AddressSnapshot{}, order.ErrUnknownAddress
	}
	if response.StatusCode != http.StatusOK {
		return order.AddressSnapshot{}, fmt.Errorf("address book %s: status %d", url, response.StatusCode)
	}
	var snapshot order.AddressSnapshot
	if err := json.NewDecoder(response.Body).Decode(&snapshot); err != nil {
		return order.AddressSnapshot{}, err
	}
	if snapshot.OriginalAddressID == "" {
		snapshot.OriginalAddressID = addressID
	}
	return snapshot, nil
}
