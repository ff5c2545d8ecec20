package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"rewear/internal/app"
	"rewear/internal/models"
	"rewear/internal/pkg/logger"
	"rewear/internal/service"
	"rewear/internal/storage"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/suite"
)

var testDatabaseURI string

func init() {
	if err := godotenv.Load("../integration/.env"); err != nil {
		log.Println("No .env file found, using default values")
	}

	testDatabaseURI = os.Getenv("TEST_DATABASE_URI")
}

type IntegrationTestSuite struct {
	suite.Suite
	server *httptest.Server
	client *http.Client
	db     *storage.PostgreSQL
}

func (s *IntegrationTestSuite) SetupSuite() {
	if testDatabaseURI == "" {
		s.T().Skip("TEST_DATABASE_URI is not set, skipping integration tests")
	}

	var l *logger.Logger
	var err error
	if l, err = logger.CreateLogger("info"); err != nil {
		log.Fatal("Failed to create logger:", err)
	}

	s.db, err = storage.NewPostgreSQL(testDatabaseURI, l)
	s.Require().NoError(err, "Error connecting to test database")

	appInstance := app.NewApp(s.db, l)
	serviceInstance := service.NewService(appInstance, "localhost:0", l)

	s.server = httptest.NewServer(serviceInstance.NewRouter())
	s.client = s.server.Client()
}

func (s *IntegrationTestSuite) TearDownSuite() {
	if s.server != nil {
		s.server.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
}

// decodeData unwraps the common response envelope and unmarshals its data
// payload into target.
func (s *IntegrationTestSuite) decodeData(resp *http.Response, target interface{}) {
	var envelope models.Response
	err := json.NewDecoder(resp.Body).Decode(&envelope)
	resp.Body.Close()
	s.Require().NoError(err, "Error decoding response envelope")

	rawData, err := json.Marshal(envelope.Data)
	s.Require().NoError(err, "Error re-marshaling envelope data")
	s.Require().NoError(json.Unmarshal(rawData, target), "Error decoding envelope data")
}

func (s *IntegrationTestSuite) authenticate(username string) string {
	authReq := models.AuthRequest{Username: username, Password: "password"}
	reqBody, err := json.Marshal(authReq)
	s.Require().NoError(err, "Error marshaling authentication request")

	resp, err := s.client.Post(s.server.URL+"/api/auth", "application/json", bytes.NewBuffer(reqBody))
	s.Require().NoError(err, "Error sending authentication request")
	s.Require().Equal(http.StatusOK, resp.StatusCode, "Expected status 200 for authentication")

	var authResp models.AuthResponse
	s.decodeData(resp, &authResp)
	s.Require().NotEmpty(authResp.Token, "Token should not be empty")
	return authResp.Token
}

func (s *IntegrationTestSuite) doJSON(method, path, token string, payload interface{}, expectedStatus int) *http.Response {
	var body *bytes.Buffer
	if payload != nil {
		reqBody, err := json.Marshal(payload)
		s.Require().NoError(err, "Error marshaling request payload")
		body = bytes.NewBuffer(reqBody)
	} else {
		body = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, s.server.URL+path, body)
	s.Require().NoError(err, "Error creating request")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	s.Require().NoError(err, "Error executing request")
	s.Require().Equalf(expectedStatus, resp.StatusCode, "Unexpected status for %s %s", method, path)
	return resp
}

func (s *IntegrationTestSuite) createApprovedItem(token, title string, pointsCost int) models.Item {
	itemReq := models.ItemRequest{
		Title:      title,
		Images:     []string{"https://img.example/" + title + ".jpg"},
		Category:   "outerwear",
		Size:       "M",
		Condition:  "good",
		PointsCost: pointsCost,
	}

	resp := s.doJSON("POST", "/api/items", token, itemReq, http.StatusCreated)
	var item models.Item
	s.decodeData(resp, &item)
	s.Require().NotZero(item.ID, "Created listing should have an ID")

	err := s.db.ApproveItem(context.Background(), item.ID)
	s.Require().NoError(err, "Error approving listing")
	return item
}

// earnPoints runs one full swap between the two users so that each ends up
// with the completion reward on their balance. It returns the completed
// order ID.
func (s *IntegrationTestSuite) earnPoints(requesterToken, responderToken string, offeredID, requestedID int32) int32 {
	swapReq := models.SwapRequest{OfferedItemID: offeredID, RequestedItemID: requestedID}
	resp := s.doJSON("POST", "/api/swaps/request", requesterToken, swapReq, http.StatusCreated)
	var swap models.Swap
	s.decodeData(resp, &swap)
	s.Require().Equal(models.SwapPending, swap.Status, "Fresh swap should be pending")

	resp = s.doJSON("PUT", fmt.Sprintf("/api/swaps/%d/accept", swap.ID), responderToken, nil, http.StatusOK)
	var order models.Order
	s.decodeData(resp, &order)
	s.Require().Equal(models.OrderAccepted, order.Status, "Accepted swap should yield an accepted order")
	s.Require().Equal(models.OrderTypeSwap, order.OrderType)

	resp = s.doJSON("GET", fmt.Sprintf("/api/orders/%d/codes", order.ID), requesterToken, nil, http.StatusOK)
	var requesterCode models.VerificationCode
	s.decodeData(resp, &requesterCode)
	s.Require().Len(requesterCode.Code, 6, "Verification code should be six digits")
	s.Require().True(requesterCode.NeedsPartnerCode, "Swap completion needs the partner's code")

	resp = s.doJSON("GET", fmt.Sprintf("/api/orders/%d/codes", order.ID), responderToken, nil, http.StatusOK)
	var responderCode models.VerificationCode
	s.decodeData(resp, &responderCode)

	completeReq := models.CompleteOrderRequest{
		RequesterCode: requesterCode.Code,
		ResponderCode: responderCode.Code,
	}
	resp = s.doJSON("PUT", fmt.Sprintf("/api/orders/%d/complete", order.ID), requesterToken, completeReq, http.StatusOK)
	var completed models.Order
	s.decodeData(resp, &completed)
	s.Require().Equal(models.OrderCompleted, completed.Status, "Order should be completed")

	return order.ID
}

func (s *IntegrationTestSuite) info(token string) models.InfoResponse {
	resp := s.doJSON("GET", "/api/info", token, nil, http.StatusOK)
	var infoResp models.InfoResponse
	s.decodeData(resp, &infoResp)
	return infoResp
}

func (s *IntegrationTestSuite) TestSwapLifecycle() {
	runID := time.Now().UnixNano()
	requesterToken := s.authenticate(fmt.Sprintf("swapper_a_%d", runID))
	responderToken := s.authenticate(fmt.Sprintf("swapper_b_%d", runID))

	offered := s.createApprovedItem(requesterToken, "wool-coat", 40)
	requested := s.createApprovedItem(responderToken, "denim-jacket", 30)

	orderID := s.earnPoints(requesterToken, responderToken, offered.ID, requested.ID)

	// Completing the same order again must be rejected, not settled twice.
	resp := s.doJSON("PUT", fmt.Sprintf("/api/orders/%d/complete", orderID), requesterToken,
		models.CompleteOrderRequest{RequesterCode: "000000", ResponderCode: "000000"}, http.StatusBadRequest)
	resp.Body.Close()

	requesterInfo := s.info(requesterToken)
	responderInfo := s.info(responderToken)
	s.Require().Equal(25, requesterInfo.Points, "Requester should hold the completion reward")
	s.Require().Equal(25, responderInfo.Points, "Responder should hold the completion reward")

	s.T().Logf("Requester points after swap: %d", requesterInfo.Points)
	s.T().Logf("Responder points after swap: %d", responderInfo.Points)
}

func (s *IntegrationTestSuite) TestRejectReleasesItems() {
	runID := time.Now().UnixNano()
	requesterToken := s.authenticate(fmt.Sprintf("rejecter_a_%d", runID))
	responderToken := s.authenticate(fmt.Sprintf("rejecter_b_%d", runID))

	offered := s.createApprovedItem(requesterToken, "linen-shirt", 15)
	requested := s.createApprovedItem(responderToken, "silk-scarf", 20)

	swapReq := models.SwapRequest{OfferedItemID: offered.ID, RequestedItemID: requested.ID}
	resp := s.doJSON("POST", "/api/swaps/request", requesterToken, swapReq, http.StatusCreated)
	var swap models.Swap
	s.decodeData(resp, &swap)

	resp = s.doJSON("PUT", fmt.Sprintf("/api/swaps/%d/reject", swap.ID), responderToken, nil, http.StatusOK)
	var rejected models.Swap
	s.decodeData(resp, &rejected)
	s.Require().Equal(models.SwapRejected, rejected.Status)

	// Both items should be available again for a new proposal.
	resp = s.doJSON("POST", "/api/swaps/request", requesterToken, swapReq, http.StatusCreated)
	resp.Body.Close()
}

func (s *IntegrationTestSuite) TestExchangeLimitBetweenPair() {
	runID := time.Now().UnixNano()
	tokenA := s.authenticate(fmt.Sprintf("limited_a_%d", runID))
	tokenB := s.authenticate(fmt.Sprintf("limited_b_%d", runID))

	// Three completed swaps between the pair, alternating direction so the
	// limiter's unordered-pair counting is exercised. The third proposal
	// goes through with two completed swaps on record; earnPoints asserts
	// each request is accepted before completing it.
	for i := 0; i < 3; i++ {
		offered := s.createApprovedItem(tokenA, fmt.Sprintf("limit-a-%d", i), 10)
		requested := s.createApprovedItem(tokenB, fmt.Sprintf("limit-b-%d", i), 10)
		if i%2 == 0 {
			s.earnPoints(tokenA, tokenB, offered.ID, requested.ID)
		} else {
			s.earnPoints(tokenB, tokenA, requested.ID, offered.ID)
		}
	}

	// The fourth proposal is blocked in both directions.
	offered := s.createApprovedItem(tokenA, "limit-a-extra", 10)
	requested := s.createApprovedItem(tokenB, "limit-b-extra", 10)

	resp := s.doJSON("POST", "/api/swaps/request", tokenA,
		models.SwapRequest{OfferedItemID: offered.ID, RequestedItemID: requested.ID}, http.StatusBadRequest)
	var envelope models.Response
	err := json.NewDecoder(resp.Body).Decode(&envelope)
	resp.Body.Close()
	s.Require().NoError(err, "Error decoding limiter rejection envelope")
	s.Require().Equal("exchange limit with this user reached, try again later", envelope.Message)

	resp = s.doJSON("POST", "/api/swaps/request", tokenB,
		models.SwapRequest{OfferedItemID: requested.ID, RequestedItemID: offered.ID}, http.StatusBadRequest)
	resp.Body.Close()

	// The blocked proposals left both items untouched, so either user may
	// still exchange them with a third party.
	tokenC := s.authenticate(fmt.Sprintf("limited_c_%d", runID))
	outsider := s.createApprovedItem(tokenC, "limit-c-fresh", 10)
	resp = s.doJSON("POST", "/api/swaps/request", tokenC,
		models.SwapRequest{OfferedItemID: outsider.ID, RequestedItemID: offered.ID}, http.StatusCreated)
	resp.Body.Close()
}

func (s *IntegrationTestSuite) TestRedemptionLifecycle() {
	runID := time.Now().UnixNano()
	redeemerToken := s.authenticate(fmt.Sprintf("redeemer_%d", runID))
	listerToken := s.authenticate(fmt.Sprintf("lister_%d", runID))

	// The redeemer earns the completion reward through one full swap first.
	offered := s.createApprovedItem(redeemerToken, "corduroy-pants", 10)
	requested := s.createApprovedItem(listerToken, "knit-sweater", 10)
	s.earnPoints(redeemerToken, listerToken, offered.ID, requested.ID)

	target := s.createApprovedItem(listerToken, "leather-boots", 25)

	resp := s.doJSON("POST", "/api/points/redeem", redeemerToken, models.RedeemRequest{ItemID: target.ID}, http.StatusCreated)
	var order models.Order
	s.decodeData(resp, &order)
	s.Require().Equal(models.OrderTypeRedemption, order.OrderType)
	s.Require().Equal(models.OrderAccepted, order.Status)
	s.Require().NotNil(order.PointsUsed)
	s.Require().Equal(25, *order.PointsUsed, "Redemption should debit the listing's cost")

	redeemerInfo := s.info(redeemerToken)
	s.Require().Equal(0, redeemerInfo.Points, "Points are debited when the redemption is placed")

	resp = s.doJSON("GET", fmt.Sprintf("/api/orders/%d/codes", order.ID), redeemerToken, nil, http.StatusOK)
	var code models.VerificationCode
	s.decodeData(resp, &code)
	s.Require().False(code.NeedsPartnerCode, "Redemption completion needs only the requester's code")

	resp = s.doJSON("PUT", fmt.Sprintf("/api/orders/%d/complete", order.ID), redeemerToken,
		models.CompleteOrderRequest{RequesterCode: code.Code}, http.StatusOK)
	var completed models.Order
	s.decodeData(resp, &completed)
	s.Require().Equal(models.OrderCompleted, completed.Status)

	listerInfo := s.info(listerToken)
	s.Require().Equal(50, listerInfo.Points, "Lister should hold two completion rewards")

	s.T().Logf("Redeemer points after redemption: %d", redeemerInfo.Points)
	s.T().Logf("Lister points after redemption: %d", listerInfo.Points)
}

func (s *IntegrationTestSuite) TestCancelRefundsRedemption() {
	runID := time.Now().UnixNano()
	redeemerToken := s.authenticate(fmt.Sprintf("canceller_%d", runID))
	listerToken := s.authenticate(fmt.Sprintf("cancel_lister_%d", runID))

	offered := s.createApprovedItem(redeemerToken, "flannel-shirt", 10)
	requested := s.createApprovedItem(listerToken, "cotton-dress", 10)
	s.earnPoints(redeemerToken, listerToken, offered.ID, requested.ID)

	target := s.createApprovedItem(listerToken, "canvas-bag", 20)

	resp := s.doJSON("POST", "/api/points/redeem", redeemerToken, models.RedeemRequest{ItemID: target.ID}, http.StatusCreated)
	var order models.Order
	s.decodeData(resp, &order)

	resp = s.doJSON("PUT", fmt.Sprintf("/api/orders/%d/cancel", order.ID), redeemerToken,
		models.CancelOrderRequest{Reason: "changed my mind"}, http.StatusOK)
	var cancelled models.Order
	s.decodeData(resp, &cancelled)
	s.Require().Equal(models.OrderCancelled, cancelled.Status)

	redeemerInfo := s.info(redeemerToken)
	s.Require().Equal(25, redeemerInfo.Points, "Cancelled redemption should refund the debited points")
}

func TestIntegrationTestSuite(t *testing.T) {
	suite.Run(t, new(IntegrationTestSuite))
}
