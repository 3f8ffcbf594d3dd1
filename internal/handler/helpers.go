package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dsetyadi/chatagent/internal/pkg/errcode"
	"github.com/dsetyadi/chatagent/internal/pkg/response"
)

func parsePathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, errcode.ErrInvalid, "invalid document id")
		return 0, false
	}
	return id, true
}
