package handler

import (
	"strconv"

	"coursepay/internal/apperr"
	"coursepay/internal/service"
	"coursepay/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	purchaseService *service.PurchaseService
	reviewService   *service.ReviewService
	topUpService    *service.TopUpService
	accountService  *service.AccountService
	logger          *zap.Logger
}

func NewHandler(
	purchaseService *service.PurchaseService,
	reviewService *service.ReviewService,
	topUpService *service.TopUpService,
	accountService *service.AccountService,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		purchaseService: purchaseService,
		reviewService:   reviewService,
		topUpService:    topUpService,
		accountService:  accountService,
		logger:          logger.Named("http"),
	}
}

// fail 输出错误响应，服务端错误记录日志
func (h *Handler) fail(c *gin.Context, err error) {
	if response.FromError(c, err) {
		h.logger.Error("请求处理失败",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Stringer("kind", apperr.KindOf(err)),
			zap.Error(err))
	}
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, name+" 参数错误")
		return 0, false
	}
	return id, true
}

func queryUserID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, "user_id 参数错误")
		return 0, false
	}
	return id, true
}

// ============================================================
// 购买相关接口
// ============================================================

type PurchaseRequest struct {
	UserID   int64 `json:"user_id" binding:"required"`
	CourseID int64 `json:"course_id" binding:"required"`
}

// Purchase 用余额购买课程
// POST /api/v1/purchases
func (h *Handler) Purchase(c *gin.Context) {
	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.purchaseService.Purchase(c.Request.Context(), req.UserID, req.CourseID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, result)
}

// CheckAccess GET /api/v1/courses/:id/access?user_id=xxx
func (h *Handler) CheckAccess(c *gin.Context) {
	courseID, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := queryUserID(c)
	if !ok {
		return
	}

	hasAccess, err := h.purchaseService.HasAccess(c.Request.Context(), userID, courseID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{"has_access": hasAccess})
}

// ListUserCourses GET /api/v1/users/:id/courses
func (h *Handler) ListUserCourses(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}

	courses, err := h.purchaseService.ListPurchasedCourses(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{"list": courses})
}

// ============================================================
// 余额相关接口
// ============================================================

// GetBalance GET /api/v1/users/:id/balance
func (h *Handler) GetBalance(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}

	balance, err := h.accountService.GetBalance(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{"user_id": userID, "balance": balance})
}

// ListEntries GET /api/v1/users/:id/entries
func (h *Handler) ListEntries(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}

	entries, err := h.accountService.ListEntries(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{"list": entries})
}

// ============================================================
// 充值相关接口
// ============================================================

type CreateTopUpRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
	Amount int64 `json:"amount"` // 金额范围由业务层校验
}

// CreateTopUp 创建充值单并返回支付链接
// POST /api/v1/topups
func (h *Handler) CreateTopUp(c *gin.Context) {
	var req CreateTopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	topUp, err := h.topUpService.CreateTopUp(c.Request.Context(), req.UserID, req.Amount)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"external_id": topUp.ExternalID,
		"payment_url": topUp.PaymentURL,
		"status":      topUp.Status,
		"amount":      topUp.Amount,
	})
}

// CheckTopUp 查询网关并推进充值单状态，可重复调用
// GET /api/v1/topups/:external_id/check
func (h *Handler) CheckTopUp(c *gin.Context) {
	externalID := c.Param("external_id")
	if externalID == "" {
		response.ParamError(c, "external_id 参数不能为空")
		return
	}

	status, err := h.topUpService.CheckStatus(c.Request.Context(), externalID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{"external_id": externalID, "status": status})
}

// ListTopUps 返回修正后的分页参数（page_size 最大 100）
// GET /api/v1/users/:id/topups?page=1&page_size=20
func (h *Handler) ListTopUps(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	result, err := h.topUpService.ListByUser(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, result)
}

// ============================================================
// 评价相关接口
// ============================================================

type ReviewRequest struct {
	UserID  int64   `json:"user_id" binding:"required"`
	Rating  int     `json:"rating"` // 1-5，由业务层校验
	Comment *string `json:"comment"`
}

// ListReviews GET /api/v1/courses/:id/reviews
func (h *Handler) ListReviews(c *gin.Context) {
	courseID, ok := pathID(c, "id")
	if !ok {
		return
	}

	reviews, err := h.reviewService.ListByCourse(c.Request.Context(), courseID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{"list": reviews})
}

// SubmitReview POST /api/v1/courses/:id/reviews
func (h *Handler) SubmitReview(c *gin.Context) {
	courseID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	review, err := h.reviewService.Submit(c.Request.Context(), req.UserID, courseID, req.Rating, req.Comment)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, review)
}

// UpdateReview PUT /api/v1/reviews/:id
func (h *Handler) UpdateReview(c *gin.Context) {
	reviewID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	review, err := h.reviewService.Update(c.Request.Context(), reviewID, req.UserID, req.Rating, req.Comment)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, review)
}

// DeleteReview 作者或管理员删除评价
// DELETE /api/v1/reviews/:id?user_id=xxx
func (h *Handler) DeleteReview(c *gin.Context) {
	reviewID, ok := pathID(c, "id")
	if !ok {
		return
	}
	actorID, ok := queryUserID(c)
	if !ok {
		return
	}

	if err := h.reviewService.Delete(c.Request.Context(), reviewID, actorID); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": true})
}
